////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package channels keeps the directory of conversations the user belongs to
// and gates destructive conversation actions behind explicit confirmation.
package channels

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/ourlog/client/messaging"
)

// leftGrace is how long events for a conversation the user just left or
// deleted are kept from adding it back.
const leftGrace = time.Minute

// ProfilePrefetcher lazily loads participant profiles.
type ProfilePrefetcher interface {
	Prefetch(done func(), userIDs ...string)
}

// Directory is the local view of the user's conversations and of the public
// conversations they can join. All mutations are insert-if-absent,
// update-by-id or remove-by-id so that user actions and remote events can
// interleave freely.
type Directory struct {
	client   messaging.Client
	selfID   string
	profiles ProfilePrefetcher
	now      func() time.Time

	mux      sync.RWMutex
	mine     []Conversation
	joinable []Conversation
	left     map[string]time.Time
}

// NewDirectory creates an empty Directory for selfID. profiles may be nil.
func NewDirectory(client messaging.Client, selfID string,
	profiles ProfilePrefetcher) *Directory {
	return &Directory{
		client:   client,
		selfID:   selfID,
		profiles: profiles,
		now:      netTime.Now,
		left:     make(map[string]time.Time),
	}
}

// SelfID returns the user the directory belongs to.
func (d *Directory) SelfID() string {
	return d.selfID
}

// Load fetches the user's conversations. It is called once after connecting;
// later changes arrive as events.
func (d *Directory) Load(ctx context.Context) error {
	chs, err := d.client.MyChannels(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to load conversations")
	}

	convs := make([]Conversation, 0, len(chs))
	for _, ch := range chs {
		convs = append(convs, FromWire(ch, d.selfID))
	}

	d.mux.Lock()
	for _, c := range convs {
		d.upsertUnsafe(c, false)
	}
	d.mux.Unlock()

	jww.INFO.Printf("[DIR] Loaded %d conversations", len(convs))
	d.prefetchParticipants(convs...)
	return nil
}

// ListMyConversations returns a snapshot of the user's conversations.
func (d *Directory) ListMyConversations() []Conversation {
	d.mux.RLock()
	defer d.mux.RUnlock()
	return cloneAll(d.mine)
}

// ListJoinableConversations returns a snapshot of the public conversations
// the user has not joined, as of the last refresh.
func (d *Directory) ListJoinableConversations() []Conversation {
	d.mux.RLock()
	defer d.mux.RUnlock()
	return cloneAll(d.joinable)
}

// Get returns the conversation with the given URL.
func (d *Directory) Get(url string) (Conversation, bool) {
	d.mux.RLock()
	defer d.mux.RUnlock()
	if i := indexOf(d.mine, url); i >= 0 {
		return clone(d.mine[i]), true
	}
	return nil, false
}

// RefreshJoinable replaces the joinable list with the backend's current
// public conversations the user has not joined.
func (d *Directory) RefreshJoinable(ctx context.Context) error {
	chs, err := d.client.PublicChannels(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to load public conversations")
	}

	d.mux.Lock()
	defer d.mux.Unlock()
	d.joinable = d.joinable[:0]
	for _, ch := range chs {
		if indexOf(d.mine, ch.URL) >= 0 {
			continue
		}
		d.joinable = append(d.joinable, FromWire(ch, d.selfID))
	}
	jww.DEBUG.Printf("[DIR] %d joinable conversations", len(d.joinable))
	return nil
}

// CreateOrGetDirectConversation returns the 1:1 conversation with
// targetUserID, creating it if needed. The backend guarantees one channel per
// participant pair, so repeated calls yield the same single entry.
func (d *Directory) CreateOrGetDirectConversation(ctx context.Context,
	targetUserID string) (Conversation, error) {
	if targetUserID == "" {
		return nil, errors.New("no target user")
	}

	ch, err := d.client.CreateDistinctChannel(ctx, []string{targetUserID})
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to open a conversation with %s", targetUserID)
	}

	c := d.insert(FromWire(ch, d.selfID))
	jww.INFO.Printf("[DIR] Direct conversation %s with %s", c.URL(),
		targetUserID)
	return c, nil
}

// CreatePublicConversation creates a public conversation named name. The
// joinable list is refreshed afterwards; if only that refresh fails, the
// created conversation is returned inside a *PartialSuccessError.
func (d *Directory) CreatePublicConversation(ctx context.Context,
	name string) (Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	url := publicHandle(name, d.now())
	ch, err := d.client.CreatePublicChannel(ctx, url, name)
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to create public conversation %q", name)
	}

	c := d.insert(FromWire(ch, d.selfID))
	jww.INFO.Printf("[DIR] Created public conversation %s", c.URL())

	if err = d.RefreshJoinable(ctx); err != nil {
		jww.WARN.Printf("[DIR] Created %s but refreshing joinable "+
			"conversations failed: %+v", c.URL(), err)
		return c, &PartialSuccessError{
			Op: "create public conversation", Created: c, Err: err}
	}
	return c, nil
}

// JoinPublicConversation joins a public conversation and moves it from the
// joinable list to the front of the user's conversations.
func (d *Directory) JoinPublicConversation(ctx context.Context,
	url string) (Conversation, error) {
	ch, err := d.client.JoinChannel(ctx, url)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to join %s", url)
	}
	c := d.insert(FromWire(ch, d.selfID))
	jww.INFO.Printf("[DIR] Joined %s", url)
	return c, nil
}

// Leave leaves the conversation and removes it from the directory.
func (d *Directory) Leave(ctx context.Context, url string) error {
	if err := d.client.LeaveChannel(ctx, url); err != nil {
		return errors.WithMessagef(err, "failed to leave %s", url)
	}
	d.Remove(url)
	jww.INFO.Printf("[DIR] Left %s", url)
	return nil
}

// Delete deletes a group conversation created by the user.
func (d *Directory) Delete(ctx context.Context, url string) error {
	if err := d.checkManage(url); err != nil {
		return err
	}
	if err := d.client.DeleteChannel(ctx, url); err != nil {
		return errors.WithMessagef(err, "failed to delete %s", url)
	}
	d.Remove(url)
	jww.INFO.Printf("[DIR] Deleted %s", url)
	return nil
}

// Rename renames a group conversation created by the user.
func (d *Directory) Rename(ctx context.Context, url, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if err := d.checkManage(url); err != nil {
		return err
	}
	ch, err := d.client.RenameChannel(ctx, url, name)
	if err != nil {
		return errors.WithMessagef(err, "failed to rename %s", url)
	}
	d.Upsert(ch)
	jww.INFO.Printf("[DIR] Renamed %s to %q", url, name)
	return nil
}

// SetMuted sets the user's mute flag for a conversation.
func (d *Directory) SetMuted(url string, muted bool) error {
	d.mux.Lock()
	defer d.mux.Unlock()
	i := indexOf(d.mine, url)
	if i < 0 {
		return errors.Wrap(ErrNotFound, url)
	}
	c := clone(d.mine[i])
	c.common().muted = muted
	d.mine[i] = c
	return nil
}

// Upsert inserts the channel at the end of the user's conversations if it is
// absent, or replaces the existing entry in place.
func (d *Directory) Upsert(ch messaging.Channel) Conversation {
	c := FromWire(ch, d.selfID)
	d.mux.Lock()
	d.upsertUnsafe(c, false)
	d.mux.Unlock()
	d.prefetchParticipants(c)
	return clone(c)
}

// UpdateLastMessage records msg as the latest message of its conversation.
// Older messages than the recorded one are ignored. Returns false if the
// conversation is unknown.
func (d *Directory) UpdateLastMessage(msg messaging.Message) bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	i := indexOf(d.mine, msg.ChannelURL)
	if i < 0 {
		return false
	}
	c := clone(d.mine[i])
	b := c.common()
	if b.lastMessage != nil && (b.lastMessage.CreatedAt > msg.CreatedAt ||
		(b.lastMessage.CreatedAt == msg.CreatedAt && b.lastMessage.ID > msg.ID)) {
		return true
	}
	m := msg
	b.lastMessage = &m
	d.mine[i] = c
	return true
}

// Remove drops the conversation from the directory. Removing an absent
// conversation is a no-op. For leftGrace afterwards, only an explicit create
// or join can add it back.
func (d *Directory) Remove(url string) {
	d.mux.Lock()
	defer d.mux.Unlock()
	now := d.now()
	for u, at := range d.left {
		if now.Sub(at) >= leftGrace {
			delete(d.left, u)
		}
	}
	d.left[url] = now
	if i := indexOf(d.mine, url); i >= 0 {
		d.mine = append(d.mine[:i], d.mine[i+1:]...)
	}
	if i := indexOf(d.joinable, url); i >= 0 {
		d.joinable = append(d.joinable[:i], d.joinable[i+1:]...)
	}
}

// ApplyEvent updates the directory from a pushed backend event.
func (d *Directory) ApplyEvent(evt messaging.Event) {
	switch evt.Kind {
	case messaging.MessageReceived, messaging.MessageUpdated:
		if evt.Message == nil {
			return
		}
		if !d.UpdateLastMessage(*evt.Message) && d.admits(evt.Channel) {
			d.Upsert(*evt.Channel)
			d.UpdateLastMessage(*evt.Message)
		}
	case messaging.ChannelChanged:
		if d.admits(evt.Channel) {
			d.Upsert(*evt.Channel)
		}
	case messaging.ChannelDeleted:
		d.Remove(evt.ChannelURL)
	case messaging.UserLeft:
		if evt.UserID == d.selfID {
			d.Remove(evt.ChannelURL)
		} else if d.admits(evt.Channel) {
			d.Upsert(*evt.Channel)
		}
	}
}

// admits reports whether an event may insert ch. Conversations removed
// within leftGrace are refused so that late events cannot add them back.
func (d *Directory) admits(ch *messaging.Channel) bool {
	if ch == nil {
		return false
	}
	d.mux.Lock()
	defer d.mux.Unlock()
	at, ok := d.left[ch.URL]
	if !ok || indexOf(d.mine, ch.URL) >= 0 {
		return true
	}
	if d.now().Sub(at) < leftGrace {
		jww.DEBUG.Printf("[DIR] Ignoring event for left conversation %s",
			ch.URL)
		return false
	}
	delete(d.left, ch.URL)
	return true
}

// insert adds c to the front of the user's conversations, or updates it in
// place if it is already present, and drops it from the joinable list.
func (d *Directory) insert(c Conversation) Conversation {
	d.mux.Lock()
	delete(d.left, c.URL())
	d.upsertUnsafe(c, true)
	if i := indexOf(d.joinable, c.URL()); i >= 0 {
		d.joinable = append(d.joinable[:i], d.joinable[i+1:]...)
	}
	d.mux.Unlock()

	if direct, ok := c.(*DirectConversation); ok {
		d.prefetch(direct.Other.UserID)
	}
	return clone(c)
}

func (d *Directory) upsertUnsafe(c Conversation, front bool) {
	if i := indexOf(d.mine, c.URL()); i >= 0 {
		// The mute flag is owned locally once the conversation is known.
		c.common().muted = d.mine[i].Muted()
		if c.LastMessage() == nil {
			c.common().lastMessage = d.mine[i].LastMessage()
		}
		d.mine[i] = c
		return
	}
	if front {
		d.mine = append([]Conversation{c}, d.mine...)
	} else {
		d.mine = append(d.mine, c)
	}
}

func (d *Directory) checkManage(url string) error {
	c, ok := d.Get(url)
	if !ok {
		return errors.Wrap(ErrNotFound, url)
	}
	if !CanManage(c, d.selfID) {
		return ErrNotCreator
	}
	return nil
}

func (d *Directory) prefetchParticipants(convs ...Conversation) {
	var ids []string
	for _, c := range convs {
		for _, p := range c.Participants() {
			if p.UserID != d.selfID {
				ids = append(ids, p.UserID)
			}
		}
	}
	d.prefetch(ids...)
}

func (d *Directory) prefetch(userIDs ...string) {
	if d.profiles == nil || len(userIDs) == 0 {
		return
	}
	d.profiles.Prefetch(nil, userIDs...)
}

func indexOf(list []Conversation, url string) int {
	for i, c := range list {
		if c.URL() == url {
			return i
		}
	}
	return -1
}

func cloneAll(list []Conversation) []Conversation {
	out := make([]Conversation, len(list))
	for i, c := range list {
		out[i] = clone(c)
	}
	return out
}
