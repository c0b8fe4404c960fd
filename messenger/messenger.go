////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package messenger assembles the chat components for a connected session
// and routes pushed backend events to them.
package messenger

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/ourlog/client/channels"
	"gitlab.com/ourlog/client/conversation"
	"gitlab.com/ourlog/client/messaging"
	"gitlab.com/ourlog/client/notifications"
	"gitlab.com/ourlog/client/profiles"
	"gitlab.com/ourlog/client/session"
	"gitlab.com/ourlog/client/stoppable"
)

const subscriptionName = "messenger"

// ErrClosed is returned by operations on a closed Messenger.
var ErrClosed = errors.New("messenger is closed")

// ErrNoOpenConversation is returned by Send when no conversation is open.
var ErrNoOpenConversation = errors.New("no conversation is open")

// Purger is implemented by message caches that can drop a whole
// conversation.
type Purger interface {
	DeleteConversation(url string) error
}

// Params bundles the parameters of every component.
type Params struct {
	Sync  conversation.Params
	Relay notifications.Params

	// ProfileFetchTimeout bounds each background profile fetch.
	ProfileFetchTimeout time.Duration

	// CloseTimeout bounds how long Close waits for background routines.
	CloseTimeout time.Duration
}

// GetDefaultParams returns the default parameters.
func GetDefaultParams() Params {
	return Params{
		Sync:                conversation.GetDefaultParams(),
		Relay:               notifications.GetDefaultParams(),
		ProfileFetchTimeout: 10 * time.Second,
		CloseTimeout:        time.Second,
	}
}

// ParseParams overrides the defaults with the given JSON.
func ParseParams(data string) (Params, error) {
	p := GetDefaultParams()
	if len(data) > 0 {
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return Params{}, errors.Wrap(err, "failed to parse messenger params")
		}
	}
	return p, nil
}

// Messenger owns the directory, gate, viewer, relay and profile cache of one
// session. It closes itself when the session closes.
type Messenger struct {
	session *session.Session
	params  Params
	cache   conversation.Cache

	profiles  *profiles.Cache
	directory *channels.Directory
	gate      *channels.Gate
	viewer    *conversation.Viewer
	relay     *notifications.Relay
	services  *stoppable.Multi

	closing   atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
}

// New wires the components for s. cache and sink may be nil. Call Load to
// fill the directory.
func New(s *session.Session, fetcher profiles.Fetcher,
	cache conversation.Cache, params Params, sink notifications.Sink,
	cbs conversation.Callbacks) (*Messenger, error) {
	if s.IsClosed() {
		return nil, ErrClosed
	}

	client := s.Messaging()
	selfID := s.UserID()

	m := &Messenger{
		session:  s,
		params:   params,
		cache:    cache,
		profiles: profiles.NewCache(fetcher, params.ProfileFetchTimeout),
		services: stoppable.NewMulti("Messenger"),
		closed:   make(chan struct{}),
	}
	m.directory = channels.NewDirectory(client, selfID, m.profiles)
	m.gate = channels.NewGate(m.directory)
	m.viewer = conversation.NewViewer(selfID, client, cache, params.Sync,
		m.withSenderPrefetch(cbs))
	m.relay = notifications.NewRelay(selfID, m.viewer, m.openFromToast, sink,
		m.profiles, params.Relay)

	if err := client.Subscribe(subscriptionName, m.route); err != nil {
		return nil, errors.WithMessage(err, "failed to subscribe to events")
	}
	m.services.Add(m.relay.Service())

	go m.watchSession()
	jww.INFO.Printf("[MESSENGER] Started for %s", selfID)
	return m, nil
}

// Load fills the conversation directory.
func (m *Messenger) Load(ctx context.Context) error {
	if m.IsClosed() {
		return ErrClosed
	}
	return m.directory.Load(ctx)
}

// Open opens a conversation, disposing whichever one was open.
func (m *Messenger) Open(ctx context.Context,
	url string) (*conversation.Synchronizer, error) {
	if m.IsClosed() {
		return nil, ErrClosed
	}
	return m.viewer.Open(ctx, url)
}

// ClickRow handles a click on a conversation row. The conversation opens
// unless a destructive action is awaiting confirmation on that row, in which
// case nil is returned.
func (m *Messenger) ClickRow(ctx context.Context,
	url string) (*conversation.Synchronizer, error) {
	if !m.gate.HandleClick(channels.ClickTarget{
		Kind: channels.ClickRow, ConversationURL: url}) {
		jww.DEBUG.Printf("[MESSENGER] Row %s is confirming, not opening", url)
		return nil, nil
	}
	return m.Open(ctx, url)
}

// Send posts a message to the open conversation and updates its directory
// entry.
func (m *Messenger) Send(ctx context.Context,
	body string) (messaging.Message, error) {
	if m.IsClosed() {
		return messaging.Message{}, ErrClosed
	}
	s := m.viewer.Current()
	if s == nil {
		return messaging.Message{}, ErrNoOpenConversation
	}
	msg, err := s.Send(ctx, body)
	if err != nil {
		return messaging.Message{}, err
	}
	m.directory.UpdateLastMessage(msg)
	return msg, nil
}

// Confirm executes the pending action of the gate. After leaving or deleting
// a conversation it is closed if open and dropped from the message cache.
func (m *Messenger) Confirm(ctx context.Context) error {
	if m.IsClosed() {
		return ErrClosed
	}
	a, ok := m.gate.Pending()
	if err := m.gate.Confirm(ctx); err != nil {
		return err
	}
	if ok && (a.Kind == channels.ActionLeave || a.Kind == channels.ActionDelete) {
		m.forget(a.ConversationURL)
	}
	return nil
}

// UserID returns the signed-in user.
func (m *Messenger) UserID() string {
	return m.session.UserID()
}

// Directory returns the conversation directory.
func (m *Messenger) Directory() *channels.Directory {
	return m.directory
}

// Gate returns the action confirmation gate.
func (m *Messenger) Gate() *channels.Gate {
	return m.gate
}

// Viewer returns the viewer of the open conversation.
func (m *Messenger) Viewer() *conversation.Viewer {
	return m.viewer
}

// Relay returns the notification relay.
func (m *Messenger) Relay() *notifications.Relay {
	return m.relay
}

// Profiles returns the profile cache.
func (m *Messenger) Profiles() *profiles.Cache {
	return m.profiles
}

// Done is closed once Close has finished.
func (m *Messenger) Done() <-chan struct{} {
	return m.closed
}

// IsClosed returns true once Close has been called.
func (m *Messenger) IsClosed() bool {
	return m.closing.Load()
}

// Close unsubscribes from events, disposes the open conversation and stops
// background routines. It does not close the session.
func (m *Messenger) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closing.Store(true)
		m.session.Messaging().Unsubscribe(subscriptionName)
		m.viewer.Close()
		m.relay.Dismiss()
		err = m.services.Close(m.params.CloseTimeout)
		close(m.closed)
		jww.INFO.Printf("[MESSENGER] Closed for %s", m.session.UserID())
	})
	return err
}

// route delivers a pushed event. The open synchronizer has its own
// subscription.
// withSenderPrefetch chains a profile prefetch onto the caller's
// SendersSeen callback.
func (m *Messenger) withSenderPrefetch(
	cbs conversation.Callbacks) conversation.Callbacks {
	seen := cbs.SendersSeen
	cbs.SendersSeen = func(userIDs ...string) {
		m.profiles.Prefetch(nil, userIDs...)
		if seen != nil {
			seen(userIDs...)
		}
	}
	return cbs
}

func (m *Messenger) route(evt messaging.Event) {
	if m.IsClosed() {
		return
	}
	jww.TRACE.Printf("[MESSENGER] %s event for %s", evt.Kind, evt.ChannelURL)
	m.directory.ApplyEvent(evt)
	if (evt.Kind == messaging.MessageReceived ||
		evt.Kind == messaging.MessageUpdated) && evt.Message != nil &&
		evt.Message.SenderID != m.session.UserID() {
		m.profiles.Prefetch(nil, evt.Message.SenderID)
	}
	m.relay.HandleEvent(evt)

	if evt.Kind == messaging.ChannelDeleted ||
		(evt.Kind == messaging.UserLeft && evt.UserID == m.session.UserID()) {
		m.forget(evt.ChannelURL)
	}
}

// forget closes url if it is open and drops its cached messages.
func (m *Messenger) forget(url string) {
	if m.viewer.CurrentURL() == url {
		m.viewer.Close()
	}
	p, ok := m.cache.(Purger)
	if !ok {
		return
	}
	if err := p.DeleteConversation(url); err != nil {
		jww.WARN.Printf("[MESSENGER] Failed to drop cached messages of %s: "+
			"%+v", url, err)
	}
}

func (m *Messenger) openFromToast(ctx context.Context, url string) error {
	_, err := m.Open(ctx, url)
	return err
}

func (m *Messenger) watchSession() {
	select {
	case <-m.session.Done():
		jww.DEBUG.Printf("[MESSENGER] Session closed, closing messenger")
		if err := m.Close(); err != nil {
			jww.WARN.Printf("[MESSENGER] Error closing: %+v", err)
		}
	case <-m.closed:
	}
}
