// Package action defines the closed set of button actions that round-trip
// through chat callback data. Tokens are decoded exactly once, at the
// transport boundary; everything past that point works with the typed Action.
package action

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates every action a button can carry.
type Kind string

const (
	KindService       Kind = "svc"   // pick a service; ID = service ID
	KindDate          Kind = "date"  // pick a day; Value = YYYY-MM-DD
	KindTime          Kind = "time"  // pick a slot; Value = RFC3339 start
	KindKeep          Kind = "keep"  // accept the pending field value
	KindEdit          Kind = "edit"  // re-enter the pending field value
	KindSkip          Kind = "skip"  // decline an optional field
	KindBack          Kind = "back"  // return to the previous step
	KindCancel        Kind = "quit"  // abandon the booking
	KindConfirm       Kind = "book"  // final summary confirmation
	KindCheckPayment  Kind = "pay"   // poll payment status; ID = payment ID
	KindApprove       Kind = "ok"    // operator approval; ID = appointment ID
	KindReject        Kind = "no"    // operator rejection; ID = appointment ID
	KindAttendConfirm Kind = "att"   // attendance confirmation; ID = appointment, Value = token
	KindAttendCancel  Kind = "drop"  // cancel from a reminder prompt; ID = appointment ID
)

// ErrUnknownAction signals callback data that does not decode to any Kind.
var ErrUnknownAction = errors.New("unknown action token")

// Action is the decoded form of one button token.
type Action struct {
	Kind  Kind
	ID    string
	Value string
}

const sep = ":"

var known = map[Kind]bool{
	KindService: true, KindDate: true, KindTime: true,
	KindKeep: true, KindEdit: true, KindSkip: true,
	KindBack: true, KindCancel: true, KindConfirm: true,
	KindCheckPayment: true, KindApprove: true, KindReject: true,
	KindAttendConfirm: true, KindAttendCancel: true,
}

// Encode renders the action as a callback token. Telegram caps callback data
// at 64 bytes; IDs and values used here stay well within it.
func (a Action) Encode() string {
	return strings.TrimRight(strings.Join([]string{string(a.Kind), a.ID, a.Value}, sep), sep)
}

// Decode parses a callback token back into an Action, rejecting anything
// outside the closed Kind set.
func Decode(token string) (Action, error) {
	parts := strings.SplitN(token, sep, 3)
	kind := Kind(parts[0])
	if !known[kind] {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, token)
	}
	a := Action{Kind: kind}
	if len(parts) > 1 {
		a.ID = parts[1]
	}
	if len(parts) > 2 {
		a.Value = parts[2]
	}
	return a, nil
}
