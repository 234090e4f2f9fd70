// Package capacity decides whether a new registration may be admitted to an event.
package capacity

import (
	"time"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
)

// Reason explains a rejection in words a participant can read.
type Reason string

const (
	ReasonFull        Reason = "event full"
	ReasonNotAccepted Reason = "event has not been approved"
	ReasonStarted     Reason = "event has already taken place"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Admit  bool
	Reason Reason
}

// HasRoom reports whether one more registration fits under max. Zero max means unlimited.
func HasRoom(max, registered int) bool {
	return max == 0 || registered < max
}

// Evaluate decides admission for an event with the given number of paid registrations.
// It has no side effects; the commit path re-checks room under a row lock.
func Evaluate(ev *model.Event, registered int, now time.Time) Decision {
	if ev.Status != model.EventAccepted {
		return Decision{Reason: ReasonNotAccepted}
	}
	if !ev.StartsAt.After(now) {
		return Decision{Reason: ReasonStarted}
	}
	if !HasRoom(ev.MaxParticipants, registered) {
		return Decision{Reason: ReasonFull}
	}
	return Decision{Admit: true}
}
