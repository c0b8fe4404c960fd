////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/ourlog/client/event"
	"gitlab.com/ourlog/client/messaging"
)

// Session is a connected messaging session for one user. It is created by
// Bridge.Connect and torn down by Close.
type Session struct {
	user   messaging.User
	client messaging.Client
	bus    *event.SessionBus

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newSession(user messaging.User, client messaging.Client,
	bus *event.SessionBus) *Session {
	return &Session{
		user:   user,
		client: client,
		bus:    bus,
		done:   make(chan struct{}),
	}
}

// UserID returns the application user ID the session is connected as.
func (s *Session) UserID() string {
	return s.user.UserID
}

// User returns the connected identity.
func (s *Session) User() messaging.User {
	return s.user
}

// Messaging returns the connected messaging client.
func (s *Session) Messaging() messaging.Client {
	return s.client
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IsClosed returns true once Close has been called.
func (s *Session) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close disconnects from the messaging backend and publishes LoggedOut.
// Subsequent calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Disconnect()
		close(s.done)
		jww.INFO.Printf("[SESSION] Session of %s closed", s.user.UserID)
		s.bus.Report(event.SessionEvent{
			Kind:      event.LoggedOut,
			UserID:    s.user.UserID,
			Timestamp: netTime.Now(),
		})
	})
	return s.closeErr
}
