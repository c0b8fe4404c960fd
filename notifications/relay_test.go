////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/ourlog/client/messaging"
	"gitlab.com/ourlog/client/profiles"
)

const selfID = "7"

type openURL string

func (o openURL) CurrentURL() string { return string(o) }

type recordSink struct {
	mux   sync.Mutex
	shown []*Toast
}

func (s *recordSink) sink(t *Toast) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.shown = append(s.shown, t)
}

func (s *recordSink) last() (*Toast, int) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if len(s.shown) == 0 {
		return nil, 0
	}
	return s.shown[len(s.shown)-1], len(s.shown)
}

type staticProfiles map[string]profiles.Entry

func (p staticProfiles) Get(id string) (profiles.Entry, bool) {
	e, ok := p[id]
	return e, ok
}

func received(url, sender string, id int64) messaging.Event {
	return messaging.Event{
		Kind:       messaging.MessageReceived,
		ChannelURL: url,
		Message: &messaging.Message{ID: id, ChannelURL: url,
			SenderID: sender, Body: "hello", CreatedAt: id},
	}
}

func newTestRelay(open string, sink Sink, params Params) *Relay {
	return NewRelay(selfID, openURL(open),
		func(context.Context, string) error { return nil }, sink, nil, params)
}

// Tests the toast rule for every combination of sender and open
// conversation.
func TestRelay_ShouldNotify(t *testing.T) {
	tests := []struct {
		name   string
		open   string
		url    string
		sender string
		expect bool
	}{
		{"other sender, other conversation", "a", "b", "42", true},
		{"other sender, open conversation", "b", "b", "42", false},
		{"own message, other conversation", "a", "b", selfID, false},
		{"own message, open conversation", "b", "b", selfID, false},
		{"nothing open", "", "b", "42", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRelay(tt.open, nil, GetDefaultParams())
			require.Equal(t, tt.expect, r.HandleEvent(received(tt.url, tt.sender, 1)))
			_, ok := r.Current()
			require.Equal(t, tt.expect, ok)
		})
	}
}

// Tests that only received messages produce toasts.
func TestRelay_HandleEvent_OtherKinds(t *testing.T) {
	r := newTestRelay("a", nil, GetDefaultParams())
	evt := received("b", "42", 1)
	evt.Kind = messaging.MessageUpdated
	require.False(t, r.HandleEvent(evt))
	require.False(t, r.HandleEvent(messaging.Event{
		Kind: messaging.MessageReceived, ChannelURL: "b"}))
}

// Tests that a second toast replaces the first instead of queueing.
func TestRelay_HandleEvent_Replaces(t *testing.T) {
	s := &recordSink{}
	r := newTestRelay("", s.sink, GetDefaultParams())

	require.True(t, r.HandleEvent(received("b", "42", 1)))
	require.True(t, r.HandleEvent(received("c", "43", 2)))

	cur, ok := r.Current()
	require.True(t, ok)
	require.Equal(t, "c", cur.ConversationURL)
	require.Equal(t, int64(2), cur.MessageID)

	last, n := s.last()
	require.Equal(t, 2, n)
	require.Equal(t, "c", last.ConversationURL)
}

// Tests that the sender's nickname and avatar are used when known.
func TestRelay_HandleEvent_Profile(t *testing.T) {
	r := NewRelay(selfID, openURL(""), nil, nil, staticProfiles{
		"42": {UserID: "42", Nickname: "mina", AvatarPath: "/img/s_42.png"},
	}, GetDefaultParams())

	r.HandleEvent(received("b", "42", 1))
	cur, _ := r.Current()
	require.Equal(t, "mina", cur.SenderName)
	require.Equal(t, "/img/s_42.png", cur.AvatarPath)

	r.HandleEvent(received("b", "99", 2))
	cur, _ = r.Current()
	require.Equal(t, "99", cur.SenderName)
	require.Empty(t, cur.AvatarPath)
}

// Tests that long bodies are shortened.
func TestRelay_HandleEvent_Preview(t *testing.T) {
	p := GetDefaultParams()
	p.PreviewLength = 5
	r := newTestRelay("", nil, p)

	evt := received("b", "42", 1)
	evt.Message.Body = "안녕하세요 여러분"
	r.HandleEvent(evt)
	cur, _ := r.Current()
	require.Equal(t, "안녕하세요…", cur.Preview)
}

// Tests that the toast clears itself after DismissAfter and that a replaced
// toast's timer does not clear its successor early.
func TestRelay_Service_AutoDismiss(t *testing.T) {
	s := &recordSink{}
	p := GetDefaultParams()
	p.DismissAfter = 50 * time.Millisecond
	r := newTestRelay("", s.sink, p)
	stop := r.Service()
	defer func() { require.NoError(t, stop.Close(time.Second)) }()

	r.HandleEvent(received("b", "42", 1))
	time.Sleep(30 * time.Millisecond)
	r.HandleEvent(received("c", "42", 2))
	time.Sleep(30 * time.Millisecond)

	cur, ok := r.Current()
	require.True(t, ok)
	require.Equal(t, "c", cur.ConversationURL)

	require.Eventually(t, func() bool {
		_, ok := r.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)

	last, _ := s.last()
	require.Nil(t, last)
}

// Tests that Dismiss clears the toast.
func TestRelay_Dismiss(t *testing.T) {
	s := &recordSink{}
	r := newTestRelay("", s.sink, GetDefaultParams())
	r.HandleEvent(received("b", "42", 1))

	r.Dismiss()
	_, ok := r.Current()
	require.False(t, ok)
	last, n := s.last()
	require.Nil(t, last)
	require.Equal(t, 2, n)

	r.Dismiss()
	_, n = s.last()
	require.Equal(t, 2, n)
}

// Tests that clicking opens the toast's conversation and clears it.
func TestRelay_Click(t *testing.T) {
	var opened string
	r := NewRelay(selfID, openURL("a"),
		func(_ context.Context, url string) error {
			opened = url
			return nil
		}, nil, nil, GetDefaultParams())

	require.ErrorIs(t, r.Click(context.Background()), ErrNoToast)

	r.HandleEvent(received("b", "42", 1))
	require.NoError(t, r.Click(context.Background()))
	require.Equal(t, "b", opened)
	_, ok := r.Current()
	require.False(t, ok)
}

// Tests ParseParams.
func TestParseParams(t *testing.T) {
	p, err := ParseParams(`{"DismissAfter": 1000000000}`)
	require.NoError(t, err)
	require.Equal(t, time.Second, p.DismissAfter)
	require.Equal(t, GetDefaultParams().PreviewLength, p.PreviewLength)

	_, err = ParseParams(`{`)
	require.Error(t, err)
}
