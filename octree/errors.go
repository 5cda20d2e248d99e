package octree

// Error types attached to the errors returned by this package. They can be
// checked with errors.IsType.
const (
	ErrTypeInvalidRegion = "invalid_region"
	ErrTypeInvalidConfig = "invalid_config"
	ErrTypeUnknownObject = "unknown_object"
)
