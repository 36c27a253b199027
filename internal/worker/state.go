package worker

import "fmt"

// State is a step of the backup chain.
type State int

const (
	Idle State = iota
	LockAcquired
	SpaceChecked
	Archived
	Verified
	Rotated
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LockAcquired:
		return "lock_acquired"
	case SpaceChecked:
		return "space_checked"
	case Archived:
		return "archived"
	case Verified:
		return "verified"
	case Rotated:
		return "rotated"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
