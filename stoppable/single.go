////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	toStoppingErr = "failed to set the status of single stoppable %q to " +
		"stopping when status is %s instead of %s"
	closeTimeoutErr = "single stoppable %q did not stop within %s"
)

// Single allows stopping a single goroutine using a channel. The routine must
// call ToStopped once it has exited its loop.
type Single struct {
	name    string
	quit    chan struct{}
	stopped chan struct{}
	status  uint32
	once    sync.Once
}

// NewSingle returns a new Single in the Running state.
func NewSingle(name string) *Single {
	return &Single{
		name:    name,
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		status:  uint32(Running),
	}
}

// Name returns the name of the Single.
func (s *Single) Name() string {
	return s.name
}

// GetStatus returns the current Status.
func (s *Single) GetStatus() Status {
	return Status(atomic.LoadUint32(&s.status))
}

// IsRunning returns true if the Single has not been asked to stop.
func (s *Single) IsRunning() bool {
	return s.GetStatus() == Running
}

// IsStopped returns true once the routine has called ToStopped.
func (s *Single) IsStopped() bool {
	return s.GetStatus() == Stopped
}

// Quit returns the channel closed when the routine should exit.
func (s *Single) Quit() <-chan struct{} {
	return s.quit
}

// ToStopped is called by the routine once it has exited.
func (s *Single) ToStopped() {
	if !atomic.CompareAndSwapUint32(
		&s.status, uint32(Stopping), uint32(Stopped)) {
		jww.DEBUG.Printf("Single stoppable %q exited on its own from "+
			"status %s", s.name, s.GetStatus())
		atomic.StoreUint32(&s.status, uint32(Stopped))
	}
	close(s.stopped)
	jww.DEBUG.Printf("Single stoppable %q stopped", s.name)
}

// Close signals the routine to quit and blocks until it reports stopped or
// the timeout elapses. Repeated calls return nil.
func (s *Single) Close(timeout time.Duration) error {
	var err error
	s.once.Do(func() {
		if !atomic.CompareAndSwapUint32(
			&s.status, uint32(Running), uint32(Stopping)) {
			if s.IsStopped() {
				return
			}
			err = errors.Errorf(toStoppingErr, s.name, s.GetStatus(), Running)
			return
		}
		jww.TRACE.Printf("Closing quit channel of single stoppable %q", s.name)
		close(s.quit)

		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-s.stopped:
		case <-timer.C:
			err = errors.Errorf(closeTimeoutErr, s.name, timeout)
		}
	})

	if err != nil {
		jww.ERROR.Print(err.Error())
	}
	return err
}
