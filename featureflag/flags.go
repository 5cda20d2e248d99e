package featureflag

type Flag string

const (
	// Makes the octree reject move notifications for entities it does not
	// track.
	FlagStrictMoveNotifications Flag = "STRICT_MOVE_NOTIFICATIONS"

	// Disables the websocket viewer of space octrees.
	FlagDisableViewer Flag = "DISABLE_VIEWER"
)

var knownFlags = map[Flag]struct{}{
	FlagStrictMoveNotifications: {},
	FlagDisableViewer:           {},
}
