////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable tracks the lifecycle of the background goroutines owned by
// a session: the event reporting loop, the websocket reader and the toast
// dismissal timer.
package stoppable

import "time"

// Stoppable is a handle to a running background routine.
type Stoppable interface {
	// Close signals the routine to stop and waits up to timeout for it to
	// report that it has stopped.
	Close(timeout time.Duration) error
	IsRunning() bool
	Name() string
}
