////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package event is a typed observable. Components subscribe by name and
// receive typed payloads from a single reporting goroutine.
package event

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/ourlog/client/stoppable"
)

// queueSize is the number of events that may be waiting for delivery before
// Report starts dropping them.
const queueSize = 1000

// Callback receives events of type T.
type Callback[T any] func(evt T)

// Reporter is the publishing side of a Bus.
type Reporter[T any] interface {
	Report(evt T)
}

// Bus holds the state of one typed event stream.
type Bus[T any] struct {
	name    string
	eventCh chan T
	cbs     sync.Map
}

// NewBus creates a Bus. Events are not delivered until Service is started.
func NewBus[T any](name string) *Bus[T] {
	return &Bus[T]{
		name:    name,
		eventCh: make(chan T, queueSize),
	}
}

// Report queues an event for delivery to every registered callback. It never
// blocks; when the queue is full the event is dropped and logged.
func (b *Bus[T]) Report(evt T) {
	select {
	case b.eventCh <- evt:
		jww.TRACE.Printf("[EVENT] %s reported: %v", b.name, evt)
	default:
		jww.ERROR.Printf("[EVENT] %s queue full, unable to report: %v",
			b.name, evt)
	}
}

// RegisterCallback records the callback under the given name. Names are
// unique per Bus.
func (b *Bus[T]) RegisterCallback(name string, cb Callback[T]) error {
	if _, exists := b.cbs.LoadOrStore(name, cb); exists {
		return errors.Errorf("key %s already exists as %s callback",
			name, b.name)
	}
	return nil
}

// UnregisterCallback removes the callback registered under name.
func (b *Bus[T]) UnregisterCallback(name string) {
	b.cbs.Delete(name)
}

// Service starts the delivery goroutine.
func (b *Bus[T]) Service() stoppable.Stoppable {
	stop := stoppable.NewSingle(fmt.Sprintf("%sEventReporting", b.name))
	go b.reportEventsHandler(stop)
	return stop
}

// reportEventsHandler delivers events to every registered callback in the
// order they were reported.
func (b *Bus[T]) reportEventsHandler(stop *stoppable.Single) {
	jww.DEBUG.Printf("[EVENT] %s reporting routine started", b.name)
	for {
		select {
		case <-stop.Quit():
			jww.DEBUG.Printf("[EVENT] Stopping %s reporting routine", b.name)
			stop.ToStopped()
			return
		case evt := <-b.eventCh:
			// Callbacks run on this routine; a slow callback delays every
			// later event.
			b.cbs.Range(func(_, cb interface{}) bool {
				cb.(Callback[T])(evt)
				return true
			})
		}
	}
}
