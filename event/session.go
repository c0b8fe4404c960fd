////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import (
	"fmt"
	"time"
)

// SessionEventKind distinguishes session lifecycle events.
type SessionEventKind uint8

const (
	LoggedIn SessionEventKind = iota + 1
	LoggedOut
)

// String returns a human-readable name for the kind. Used for logging.
func (k SessionEventKind) String() string {
	switch k {
	case LoggedIn:
		return "LoggedIn"
	case LoggedOut:
		return "LoggedOut"
	default:
		return fmt.Sprintf("INVALID SESSION EVENT %d", uint8(k))
	}
}

// SessionEvent is published when a user signs in or out.
type SessionEvent struct {
	Kind      SessionEventKind
	UserID    string
	Timestamp time.Time
}

// String renders the event for logs.
func (e SessionEvent) String() string {
	return fmt.Sprintf("SessionEvent(%s, %s, %s)",
		e.Kind, e.UserID, e.Timestamp.Format(time.RFC3339))
}

// SessionBus is the bus carrying SessionEvent.
type SessionBus = Bus[SessionEvent]

// NewSessionBus creates a bus for session lifecycle events.
func NewSessionBus() *SessionBus {
	return NewBus[SessionEvent]("Session")
}
