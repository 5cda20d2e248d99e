package octree

// Handle is an opaque value a Visualizer associates with a node.
type Handle any

// Visualizer is notified of the structural changes of a tree so it can
// maintain a representation of it.
//
// Calls happen while the tree is being mutated. Implementations must not call
// back into the tree.
type Visualizer interface {
	// Create is called when a node is created and returns the handle
	// representing it.
	Create(r Region, depth int) Handle

	// Attach is called after a child has been created under parent.
	Attach(parent, child Handle)

	// Detach is called when pruning destroys a child of parent.
	Detach(parent, child Handle)

	// Show is called when an object is stored directly at a node.
	Show(h Handle)

	// Hide is called when a node stops holding objects directly.
	Hide(h Handle)
}

// NopVisualizer is a visualizer that does nothing.
type NopVisualizer struct{}

func (NopVisualizer) Create(r Region, depth int) Handle { return nil }
func (NopVisualizer) Attach(parent, child Handle)       {}
func (NopVisualizer) Detach(parent, child Handle)       {}
func (NopVisualizer) Show(h Handle)                     {}
func (NopVisualizer) Hide(h Handle)                     {}
