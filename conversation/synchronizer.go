////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package conversation keeps the message log of the open conversation. The
// log is reconciled from three sources: the local cache, paginated history
// from the backend, and pushed events. At most one Synchronizer is live at a
// time; the Viewer enforces this.
package conversation

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/ourlog/client/messaging"
)

// Cache stores messages between sessions. Cached messages are provisional.
type Cache interface {
	Messages(url string) ([]messaging.Message, error)
	Store(url string, msgs ...messaging.Message) error
	Delete(url string, ids ...int64) error
}

// Callbacks are render hooks. They are called without any lock held.
type Callbacks struct {
	// StateChanged is called on every state transition.
	StateChanged func(url string, s State)

	// MessagesChanged is called with a snapshot of the log after every
	// change.
	MessagesChanged func(url string, msgs []messaging.Message)

	// SendersSeen is called with the distinct senders, other than the
	// user, of every batch of messages merged into the log.
	SendersSeen func(userIDs ...string)
}

// Params configures synchronizers.
type Params struct {
	// PageSize is the number of messages requested per history page.
	PageSize int
}

// GetDefaultParams returns the default synchronizer parameters.
func GetDefaultParams() Params {
	return Params{PageSize: 30}
}

// ParseParams overrides the defaults with the given JSON.
func ParseParams(data string) (Params, error) {
	p := GetDefaultParams()
	if len(data) > 0 {
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

var subscriptionCounter uint64

// Synchronizer maintains the ordered, deduplicated message log of one
// conversation.
type Synchronizer struct {
	url     string
	selfID  string
	client  messaging.Client
	cache   Cache
	params  Params
	cbs     Callbacks
	subName string

	mux        sync.Mutex
	state      State
	messages   []messaging.Message
	buffered   []messaging.Event
	oldest     int64
	hasMore    bool
	nextTempID int64
}

// NewSynchronizer creates an Uninitialized synchronizer for url. cache may
// be nil.
func NewSynchronizer(url, selfID string, client messaging.Client, cache Cache,
	params Params, cbs Callbacks) *Synchronizer {
	if params.PageSize <= 0 {
		params.PageSize = GetDefaultParams().PageSize
	}
	return &Synchronizer{
		url:    url,
		selfID: selfID,
		client: client,
		cache:  cache,
		params: params,
		cbs:    cbs,
		subName: "conversation-" + url + "-" + strconv.FormatUint(
			atomic.AddUint64(&subscriptionCounter, 1), 10),
		state:      Uninitialized,
		nextTempID: -1,
	}
}

// URL returns the conversation the synchronizer follows.
func (s *Synchronizer) URL() string {
	return s.url
}

// State returns the current state.
func (s *Synchronizer) State() State {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.state
}

// Messages returns a snapshot of the log in display order.
func (s *Synchronizer) Messages() []messaging.Message {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.snapshotUnsafe()
}

// Message returns the message with the given ID.
func (s *Synchronizer) Message(id int64) (messaging.Message, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return messaging.Message{}, false
}

// HasMore returns true if older history may exist on the backend.
func (s *Synchronizer) HasMore() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.hasMore
}

// Start runs the initial load: cached messages are shown first, then the
// first history page is merged over them and the synchronizer goes live.
// Events received while loading are applied after the merge. A transport
// error while fetching history disposes the synchronizer.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mux.Lock()
	if s.state != Uninitialized {
		s.mux.Unlock()
		return ErrAlreadyStarted
	}
	s.state = LoadingCache
	s.mux.Unlock()
	s.notifyState(LoadingCache)

	if err := s.client.Subscribe(s.subName, s.HandleEvent); err != nil {
		s.Dispose()
		return errors.WithMessagef(err, "failed to subscribe to %s", s.url)
	}

	var cached []messaging.Message
	if s.cache != nil {
		var err error
		if cached, err = s.cache.Messages(s.url); err != nil {
			jww.WARN.Printf("[SYNC] Ignoring unreadable cache of %s: %+v",
				s.url, err)
			cached = nil
		}
	}

	s.mux.Lock()
	if s.state == Disposed {
		s.mux.Unlock()
		return ErrDisposed
	}
	s.messages = merge(nil, cached...)
	snapshot := s.snapshotUnsafe()
	s.state = LoadingRemote
	s.mux.Unlock()
	jww.DEBUG.Printf("[SYNC] Replayed %d cached messages of %s",
		len(cached), s.url)
	s.notifyMessages(snapshot)
	s.notifyState(LoadingRemote)

	remote, err := s.fetch(ctx, messaging.HistoryQuery{Limit: s.params.PageSize})
	if err != nil {
		if s.State() == Disposed {
			return ErrDisposed
		}
		s.Dispose()
		return errors.WithMessagef(err, "failed to load history of %s", s.url)
	}

	s.mux.Lock()
	if s.state == Disposed {
		s.mux.Unlock()
		return ErrDisposed
	}
	s.messages = merge(s.messages, remote...)
	s.trackPageUnsafe(remote)
	store, deleted := remote, []int64(nil)
	for _, evt := range s.buffered {
		evtStore, evtDeleted := s.applyUnsafe(evt)
		store = append(store, evtStore...)
		deleted = append(deleted, evtDeleted...)
	}
	jww.INFO.Printf("[SYNC] %s live with %d remote messages and %d "+
		"buffered events", s.url, len(remote), len(s.buffered))
	s.buffered = nil
	s.state = Live
	snapshot = s.snapshotUnsafe()
	s.mux.Unlock()

	s.writeThrough(store, deleted)
	s.notifyState(Live)
	s.notifyMessages(snapshot)
	s.notifySenders(append(cached, store...))
	return nil
}

// LoadPrevious fetches the page of history older than the oldest message
// loaded from the backend so far. It returns the number of messages fetched.
func (s *Synchronizer) LoadPrevious(ctx context.Context) (int, error) {
	s.mux.Lock()
	if s.state != Live {
		st := s.state
		s.mux.Unlock()
		if st == Disposed {
			return 0, ErrDisposed
		}
		return 0, ErrNotLive
	}
	if !s.hasMore {
		s.mux.Unlock()
		return 0, nil
	}
	before := s.oldest
	s.mux.Unlock()

	page, err := s.fetch(ctx, messaging.HistoryQuery{
		Before: before, Limit: s.params.PageSize})
	if err != nil {
		return 0, errors.WithMessagef(err,
			"failed to load history of %s before %d", s.url, before)
	}

	s.mux.Lock()
	if s.state == Disposed {
		s.mux.Unlock()
		return 0, ErrDisposed
	}
	s.messages = merge(s.messages, page...)
	s.trackPageUnsafe(page)
	snapshot := s.snapshotUnsafe()
	s.mux.Unlock()

	s.storeCache(page...)
	s.notifyMessages(snapshot)
	s.notifySenders(page)
	return len(page), nil
}

// Send posts a text message. A local echo with a negative temporary ID is
// shown until the backend returns the stored message.
func (s *Synchronizer) Send(ctx context.Context,
	body string) (messaging.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return messaging.Message{}, ErrEmptyMessage
	}
	return s.send(ctx, messaging.MessageParams{Body: body})
}

func (s *Synchronizer) send(ctx context.Context,
	p messaging.MessageParams) (messaging.Message, error) {
	s.mux.Lock()
	if s.state != Live {
		st := s.state
		s.mux.Unlock()
		if st == Disposed {
			return messaging.Message{}, ErrDisposed
		}
		return messaging.Message{}, ErrNotLive
	}
	echo := messaging.Message{
		ID:         s.nextTempID,
		ChannelURL: s.url,
		SenderID:   s.selfID,
		Body:       p.Body,
		CreatedAt:  netTime.Now().UnixMilli(),
		CustomType: p.CustomType,
		Data:       p.Data,
	}
	s.nextTempID--
	s.messages = merge(s.messages, echo)
	snapshot := s.snapshotUnsafe()
	s.mux.Unlock()
	s.notifyMessages(snapshot)

	sent, err := s.client.SendMessage(ctx, s.url, p)

	s.mux.Lock()
	if s.state == Disposed {
		s.mux.Unlock()
		return sent, err
	}
	s.messages = remove(s.messages, echo.ID)
	if err == nil {
		if sent.ChannelURL == "" {
			sent.ChannelURL = s.url
		}
		s.messages = merge(s.messages, sent)
	}
	snapshot = s.snapshotUnsafe()
	s.mux.Unlock()
	s.notifyMessages(snapshot)

	if err != nil {
		return messaging.Message{}, errors.WithMessagef(err,
			"failed to send message to %s", s.url)
	}
	s.storeCache(sent)
	return sent, nil
}

// HandleEvent receives pushed events. Events for other conversations are
// ignored, events before the initial load completes are buffered and events
// after disposal are dropped.
func (s *Synchronizer) HandleEvent(evt messaging.Event) {
	if evt.ChannelURL != s.url {
		return
	}
	s.apply(evt)
}

// Dispose stops the synchronizer. No state changes after Dispose returns,
// even for events or results that are already in flight.
func (s *Synchronizer) Dispose() {
	s.mux.Lock()
	if s.state == Disposed {
		s.mux.Unlock()
		return
	}
	s.state = Disposed
	s.buffered = nil
	s.mux.Unlock()

	s.client.Unsubscribe(s.subName)
	jww.DEBUG.Printf("[SYNC] %s disposed", s.url)
	s.notifyState(Disposed)
}

// apply updates the log from an event, buffering it until the synchronizer
// is live.
func (s *Synchronizer) apply(evt messaging.Event) {
	s.mux.Lock()
	switch s.state {
	case Disposed:
		s.mux.Unlock()
		jww.TRACE.Printf("[SYNC] Dropping %s for disposed %s", evt.Kind,
			s.url)
		return
	case Live:
	default:
		s.buffered = append(s.buffered, evt)
		s.mux.Unlock()
		return
	}

	store, deleted := s.applyUnsafe(evt)
	if store == nil && deleted == nil {
		s.mux.Unlock()
		return
	}
	snapshot := s.snapshotUnsafe()
	s.mux.Unlock()

	s.writeThrough(store, deleted)
	s.notifyMessages(snapshot)
	s.notifySenders(store)
}

// applyUnsafe applies one event to the log and returns what must be written
// through to the cache. Every kind is idempotent.
func (s *Synchronizer) applyUnsafe(
	evt messaging.Event) (store []messaging.Message, deleted []int64) {
	switch evt.Kind {
	case messaging.MessageReceived:
		if evt.Message != nil {
			s.messages = merge(s.messages, *evt.Message)
			store = []messaging.Message{*evt.Message}
		}
	case messaging.MessageUpdated:
		if evt.Message != nil && replace(s.messages, *evt.Message) {
			store = []messaging.Message{*evt.Message}
		}
	case messaging.MessageDeleted:
		if len(evt.MessageIDs) > 0 {
			s.messages = remove(s.messages, evt.MessageIDs...)
			deleted = evt.MessageIDs
		}
	}
	return store, deleted
}

// fetch loads and normalizes one page of history.
func (s *Synchronizer) fetch(ctx context.Context,
	q messaging.HistoryQuery) ([]messaging.Message, error) {
	raw, err := s.client.LoadMessages(ctx, s.url, q)
	if err != nil {
		return nil, err
	}
	return messaging.NormalizeHistory(raw)
}

func (s *Synchronizer) trackPageUnsafe(page []messaging.Message) {
	s.hasMore = len(page) >= s.params.PageSize
	for _, m := range page {
		if s.oldest == 0 || m.CreatedAt < s.oldest {
			s.oldest = m.CreatedAt
		}
	}
}

func (s *Synchronizer) snapshotUnsafe() []messaging.Message {
	out := make([]messaging.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// storeCache writes server-assigned messages through to the cache.
func (s *Synchronizer) storeCache(msgs ...messaging.Message) {
	s.writeThrough(msgs, nil)
}

// writeThrough mirrors log changes into the cache. Temporary local echoes
// are never cached.
func (s *Synchronizer) writeThrough(store []messaging.Message, deleted []int64) {
	if s.cache == nil {
		return
	}
	stored := make([]messaging.Message, 0, len(store))
	for _, m := range store {
		if m.ID > 0 {
			stored = append(stored, m)
		}
	}
	if len(stored) > 0 {
		if err := s.cache.Store(s.url, stored...); err != nil {
			jww.WARN.Printf("[SYNC] Failed to cache messages of %s: %+v",
				s.url, err)
		}
	}
	if len(deleted) > 0 {
		if err := s.cache.Delete(s.url, deleted...); err != nil {
			jww.WARN.Printf("[SYNC] Failed to delete cached messages of "+
				"%s: %+v", s.url, err)
		}
	}
}

func (s *Synchronizer) notifyState(st State) {
	jww.TRACE.Printf("[SYNC] %s -> %s", s.url, st)
	if s.cbs.StateChanged != nil {
		s.cbs.StateChanged(s.url, st)
	}
}

func (s *Synchronizer) notifyMessages(msgs []messaging.Message) {
	if s.cbs.MessagesChanged != nil {
		s.cbs.MessagesChanged(s.url, msgs)
	}
}

func (s *Synchronizer) notifySenders(msgs []messaging.Message) {
	if s.cbs.SendersSeen == nil {
		return
	}
	seen := make(map[string]bool, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID == "" || m.SenderID == s.selfID || seen[m.SenderID] {
			continue
		}
		seen[m.SenderID] = true
		ids = append(ids, m.SenderID)
	}
	if len(ids) > 0 {
		s.cbs.SendersSeen(ids...)
	}
}
