////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package notifications surfaces incoming messages as in-app toasts. A toast
// is shown only for messages from someone else in a conversation that is
// not currently open. One toast is visible at a time; a newer one replaces
// it.
package notifications

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/ourlog/client/messaging"
	"gitlab.com/ourlog/client/profiles"
	"gitlab.com/ourlog/client/stoppable"
)

// ErrNoToast is returned by Click when no toast is showing.
var ErrNoToast = errors.New("no notification is showing")

// Toast is one in-app notification.
type Toast struct {
	ID              uint64
	ConversationURL string
	MessageID       int64
	SenderID        string
	SenderName      string
	AvatarPath      string
	Preview         string
	ShownAt         time.Time
}

// Sink receives the toast to render, or nil when the toast is cleared.
type Sink func(t *Toast)

// OpenState reports which conversation is open.
type OpenState interface {
	CurrentURL() string
}

// OpenFunc opens a conversation.
type OpenFunc func(ctx context.Context, url string) error

// ProfileLookup resolves sender display profiles.
type ProfileLookup interface {
	Get(userID string) (profiles.Entry, bool)
}

// Params configures the relay.
type Params struct {
	// DismissAfter is how long a toast stays before it is cleared.
	DismissAfter time.Duration

	// PreviewLength is the maximum number of runes of the message body
	// shown.
	PreviewLength int
}

// GetDefaultParams returns the default relay parameters.
func GetDefaultParams() Params {
	return Params{
		DismissAfter:  5 * time.Second,
		PreviewLength: 80,
	}
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

// Relay decides which incoming messages become toasts.
type Relay struct {
	selfID   string
	open     OpenState
	openFn   OpenFunc
	sink     Sink
	profiles ProfileLookup
	params   Params

	mux       sync.Mutex
	current   *Toast
	nextID    uint64
	scheduled chan uint64
}

// NewRelay creates a Relay for selfID. profiles and sink may be nil.
// Auto-dismissal only happens while the Service is running.
func NewRelay(selfID string, open OpenState, openFn OpenFunc, sink Sink,
	profiles ProfileLookup, params Params) *Relay {
	return &Relay{
		selfID:    selfID,
		open:      open,
		openFn:    openFn,
		sink:      sink,
		profiles:  profiles,
		params:    params,
		scheduled: make(chan uint64, 1),
	}
}

// ShouldNotify returns true if msg warrants a toast: it was sent by someone
// else and its conversation is not the open one.
func (r *Relay) ShouldNotify(msg messaging.Message) bool {
	return msg.SenderID != r.selfID && msg.ChannelURL != r.open.CurrentURL()
}

// HandleEvent shows a toast for qualifying received messages and reports
// whether it did.
func (r *Relay) HandleEvent(evt messaging.Event) bool {
	if evt.Kind != messaging.MessageReceived || evt.Message == nil {
		return false
	}
	msg := *evt.Message
	if msg.ChannelURL == "" {
		msg.ChannelURL = evt.ChannelURL
	}
	if !r.ShouldNotify(msg) {
		jww.TRACE.Printf("[RELAY] Suppressed message %d in %s", msg.ID,
			msg.ChannelURL)
		return false
	}

	t := &Toast{
		ConversationURL: msg.ChannelURL,
		MessageID:       msg.ID,
		SenderID:        msg.SenderID,
		SenderName:      msg.SenderID,
		Preview:         preview(msg.Body, r.params.PreviewLength),
		ShownAt:         netTime.Now(),
	}
	if r.profiles != nil {
		if p, ok := r.profiles.Get(msg.SenderID); ok {
			if p.Nickname != "" {
				t.SenderName = p.Nickname
			}
			t.AvatarPath = p.AvatarPath
		}
	}

	r.mux.Lock()
	r.nextID++
	t.ID = r.nextID
	r.current = t
	select {
	case <-r.scheduled:
	default:
	}
	r.scheduled <- t.ID
	shown := *t
	r.mux.Unlock()

	jww.DEBUG.Printf("[RELAY] Toast %d for message %d in %s", shown.ID,
		shown.MessageID, shown.ConversationURL)
	r.emit(&shown)
	return true
}

// Current returns the visible toast.
func (r *Relay) Current() (Toast, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.current == nil {
		return Toast{}, false
	}
	return *r.current, true
}

// Dismiss clears the visible toast.
func (r *Relay) Dismiss() {
	r.clear(0)
}

// Click clears the toast and opens its conversation.
func (r *Relay) Click(ctx context.Context) error {
	r.mux.Lock()
	t := r.current
	r.current = nil
	r.mux.Unlock()

	if t == nil {
		return ErrNoToast
	}
	r.emit(nil)
	jww.DEBUG.Printf("[RELAY] Toast %d clicked, opening %s", t.ID,
		t.ConversationURL)
	return r.openFn(ctx, t.ConversationURL)
}

// Service starts the goroutine that dismisses toasts after DismissAfter.
func (r *Relay) Service() stoppable.Stoppable {
	stop := stoppable.NewSingle("ToastDismisser")
	go r.dismissLoop(stop)
	return stop
}

func (r *Relay) dismissLoop(stop *stoppable.Single) {
	timer := time.NewTimer(r.params.DismissAfter)
	stopTimer(timer)
	var pending uint64

	for {
		select {
		case <-stop.Quit():
			timer.Stop()
			stop.ToStopped()
			return
		case id := <-r.scheduled:
			stopTimer(timer)
			timer.Reset(r.params.DismissAfter)
			pending = id
		case <-timer.C:
			r.clear(pending)
		}
	}
}

// clear removes the current toast. A non-zero id only clears that toast, so
// a timer for a replaced toast does nothing.
func (r *Relay) clear(id uint64) {
	r.mux.Lock()
	if r.current == nil || (id != 0 && r.current.ID != id) {
		r.mux.Unlock()
		return
	}
	r.current = nil
	r.mux.Unlock()
	r.emit(nil)
}

func (r *Relay) emit(t *Toast) {
	if r.sink != nil {
		r.sink(t)
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func preview(body string, max int) string {
	runes := []rune(body)
	if max <= 0 || len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "…"
}
