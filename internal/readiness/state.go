// Package readiness loads the search index in the background and publishes
// it through an atomically swapped snapshot handle.
package readiness

// State is the lifecycle of the serving index.
type State int32

const (
	NotLoaded State = iota
	Loading
	Ready
	LoadFailed
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case LoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}
