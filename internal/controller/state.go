package controller

import "fmt"

// PushState is the push enablement state. Failures leave the controller
// at the last state it reached successfully.
type PushState int

const (
	StateDisabled PushState = iota
	StateSupported
	StateRegistering
	StateRegistered
	StatePermissionDefault
	StatePermissionGranted
	StatePermissionDenied
	StateSubscribing
	StateSubscribed
)

var pushStateNames = map[PushState]string{
	StateDisabled:          "disabled",
	StateSupported:         "supported",
	StateRegistering:       "registering",
	StateRegistered:        "registered",
	StatePermissionDefault: "permission:default",
	StatePermissionGranted: "permission:granted",
	StatePermissionDenied:  "permission:denied",
	StateSubscribing:       "subscribing",
	StateSubscribed:        "subscribed",
}

func (s PushState) String() string {
	if name, ok := pushStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PushState(%d)", int(s))
}
