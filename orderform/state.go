// Package orderform drives the create and edit form of manufacturing orders
package orderform

import "fmt"

// Mode is the form's finite state
type Mode int

const (
	Closed Mode = iota
	Creating
	Editing
)

func (m Mode) String() string {
	switch m {
	case Closed:
		return "closed"
	case Creating:
		return "creating"
	case Editing:
		return "editing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// State is the whole form state. OrderID is set only while Editing. Session
// changes every time the form opens or closes, so results of requests issued
// by an earlier session can be recognized and dropped.
type State struct {
	Mode    Mode
	OrderID uint
	Session uint64
}

// Open reports whether the form is showing
func (s State) Open() bool {
	return s.Mode != Closed
}
