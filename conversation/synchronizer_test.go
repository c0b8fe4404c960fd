////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/ourlog/client/conversation/storage"
	"gitlab.com/ourlog/client/messaging"
)

const selfID = "1"

// memCache is an in-memory Cache.
type memCache struct {
	mux  sync.Mutex
	msgs map[string]map[int64]messaging.Message
}

func newMemCache() *memCache {
	return &memCache{msgs: make(map[string]map[int64]messaging.Message)}
}

func (c *memCache) Messages(url string) ([]messaging.Message, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	out := make([]messaging.Message, 0, len(c.msgs[url]))
	for _, m := range c.msgs[url] {
		out = append(out, m)
	}
	return out, nil
}

func (c *memCache) Store(url string, msgs ...messaging.Message) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.msgs[url] == nil {
		c.msgs[url] = make(map[int64]messaging.Message)
	}
	for _, m := range msgs {
		c.msgs[url][m.ID] = m
	}
	return nil
}

func (c *memCache) Delete(url string, ids ...int64) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	for _, id := range ids {
		delete(c.msgs[url], id)
	}
	return nil
}

func newTestClient(t *testing.T, urls ...string) *messaging.MockClient {
	client := messaging.NewMockClient()
	_, err := client.Connect(context.Background(), selfID, "token")
	require.NoError(t, err)
	for _, url := range urls {
		client.AddChannel(messaging.Channel{URL: url}, selfID, "42")
	}
	return client
}

func ids(msgs []messaging.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func received(url string, id, createdAt int64) messaging.Event {
	return messaging.Event{
		Kind:       messaging.MessageReceived,
		ChannelURL: url,
		Message: &messaging.Message{ID: id, ChannelURL: url, SenderID: "42",
			Body: "m", CreatedAt: createdAt},
	}
}

func startLive(t *testing.T, client *messaging.MockClient, url string,
	cache Cache) *Synchronizer {
	s := NewSynchronizer(url, selfID, client, cache, GetDefaultParams(),
		Callbacks{})
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, Live, s.State())
	return s
}

// Tests the walk from a brand new conversation to Live with an empty,
// non-error message list.
func TestSynchronizer_Start_EmptyHistory(t *testing.T) {
	client := newTestClient(t, "dm")

	var mux sync.Mutex
	var states []State
	s := NewSynchronizer("dm", selfID, client, nil, GetDefaultParams(),
		Callbacks{StateChanged: func(_ string, st State) {
			mux.Lock()
			states = append(states, st)
			mux.Unlock()
		}})
	require.Equal(t, Uninitialized, s.State())

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, []State{LoadingCache, LoadingRemote, Live}, states)
	require.NotNil(t, s.Messages())
	require.Empty(t, s.Messages())
	require.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
}

// Tests that a null result and a list delivered in the error slot are both
// treated as data.
func TestSynchronizer_Start_AmbiguousResult(t *testing.T) {
	client := newTestClient(t, "dm")
	client.RawHistory = func(string, messaging.HistoryQuery) messaging.RawResult {
		return messaging.RawResult{Result: json.RawMessage(`null`)}
	}
	s := startLive(t, client, "dm", nil)
	require.Empty(t, s.Messages())

	client.RawHistory = func(string, messaging.HistoryQuery) messaging.RawResult {
		return messaging.RawResult{Err: json.RawMessage(
			`[{"messageId":3,"message":"hi","createdAt":5}]`)}
	}
	s = startLive(t, client, "dm", nil)
	require.Equal(t, []int64{3}, ids(s.Messages()))
}

// Tests that a genuine error disposes the synchronizer.
func TestSynchronizer_Start_Error(t *testing.T) {
	client := newTestClient(t, "dm")
	client.RawHistory = func(string, messaging.HistoryQuery) messaging.RawResult {
		return messaging.RawResult{Err: json.RawMessage(
			`{"code":800101,"message":"connection lost"}`)}
	}

	s := NewSynchronizer("dm", selfID, client, nil, GetDefaultParams(),
		Callbacks{})
	err := s.Start(context.Background())
	require.True(t, messaging.IsSDKError(err))
	require.Equal(t, Disposed, s.State())

	client.Push(received("dm", 1, 1))
	require.Empty(t, s.Messages())
}

// Tests that applying the same added event twice leaves one copy.
func TestSynchronizer_MessageAdded_Idempotent(t *testing.T) {
	client := newTestClient(t, "dm")
	s := startLive(t, client, "dm", nil)

	evt := received("dm", 5, 90)
	client.Push(evt)
	once := s.Messages()
	client.Push(evt)
	require.Equal(t, once, s.Messages())
	require.Equal(t, []int64{5}, ids(s.Messages()))
}

// Tests that the log is in timestamp order whatever the arrival order.
func TestSynchronizer_SortInvariant(t *testing.T) {
	client := newTestClient(t, "dm")
	s := startLive(t, client, "dm", nil)

	client.Push(received("dm", 7, 100))
	client.Push(received("dm", 5, 90))

	msgs := s.Messages()
	require.Equal(t, []int64{5, 7}, ids(msgs))
	require.Equal(t, int64(90), msgs[0].CreatedAt)
	require.Equal(t, int64(100), msgs[1].CreatedAt)

	for _, id := range []int64{3, 11, 9, 1} {
		client.Push(received("dm", id, 200-id))
	}
	msgs = s.Messages()
	for i := 1; i < len(msgs); i++ {
		require.LessOrEqual(t, msgs[i-1].CreatedAt, msgs[i].CreatedAt)
	}
}

// Tests replace-by-id updates and remove-all-matching deletes, each applied
// twice.
func TestSynchronizer_UpdateDelete(t *testing.T) {
	client := newTestClient(t, "dm")
	s := startLive(t, client, "dm", nil)
	for _, id := range []int64{1, 2, 3} {
		client.Push(received("dm", id, id*10))
	}

	updated := messaging.Message{ID: 2, ChannelURL: "dm", SenderID: "42",
		Body: "edited", CreatedAt: 20}
	for i := 0; i < 2; i++ {
		client.Push(messaging.Event{Kind: messaging.MessageUpdated,
			ChannelURL: "dm", Message: &updated})
	}
	m, ok := s.Message(2)
	require.True(t, ok)
	require.Equal(t, "edited", m.Body)

	// Updates for unknown messages are not inserts.
	unknown := messaging.Message{ID: 99, ChannelURL: "dm", CreatedAt: 1}
	client.Push(messaging.Event{Kind: messaging.MessageUpdated,
		ChannelURL: "dm", Message: &unknown})

	for i := 0; i < 2; i++ {
		client.Push(messaging.Event{Kind: messaging.MessageDeleted,
			ChannelURL: "dm", MessageIDs: []int64{1, 3, 42}})
	}
	require.Equal(t, []int64{2}, ids(s.Messages()))
}

// Tests that cached messages are shown first and that the remote copy wins.
func TestSynchronizer_CacheReplay(t *testing.T) {
	client := newTestClient(t, "dm")
	client.AddMessage(messaging.Message{ID: 2, ChannelURL: "dm",
		SenderID: "42", Body: "remote", CreatedAt: 20})

	cache := newMemCache()
	require.NoError(t, cache.Store("dm",
		messaging.Message{ID: 1, Body: "cached only", CreatedAt: 10},
		messaging.Message{ID: 2, Body: "stale", CreatedAt: 20}))

	var mux sync.Mutex
	var snapshots [][]messaging.Message
	s := NewSynchronizer("dm", selfID, client, cache, GetDefaultParams(),
		Callbacks{MessagesChanged: func(_ string, msgs []messaging.Message) {
			mux.Lock()
			snapshots = append(snapshots, msgs)
			mux.Unlock()
		}})
	require.NoError(t, s.Start(context.Background()))

	require.GreaterOrEqual(t, len(snapshots), 2)
	require.Equal(t, "stale", snapshots[0][1].Body)

	msgs := s.Messages()
	require.Equal(t, []int64{1, 2}, ids(msgs))
	require.Equal(t, "remote", msgs[1].Body)

	cached, _ := cache.Messages("dm")
	for _, m := range cached {
		if m.ID == 2 {
			require.Equal(t, "remote", m.Body)
		}
	}
}

// Tests that events pushed while history is loading are applied once live.
func TestSynchronizer_BuffersDuringLoad(t *testing.T) {
	client := newTestClient(t, "dm")
	client.AddMessage(messaging.Message{ID: 5, ChannelURL: "dm",
		SenderID: "42", CreatedAt: 50})
	client.BeforeHistory = func(string) {
		client.Push(received("dm", 6, 60))
		client.Push(messaging.Event{Kind: messaging.MessageDeleted,
			ChannelURL: "dm", MessageIDs: []int64{5}})
	}

	s := startLive(t, client, "dm", nil)
	require.Equal(t, []int64{6}, ids(s.Messages()))
}

// Tests that LoadPrevious pages backwards until history is exhausted.
func TestSynchronizer_LoadPrevious(t *testing.T) {
	client := newTestClient(t, "dm")
	for id := int64(1); id <= 5; id++ {
		client.AddMessage(messaging.Message{ID: id, ChannelURL: "dm",
			SenderID: "42", CreatedAt: id * 10})
	}

	s := NewSynchronizer("dm", selfID, client, nil, Params{PageSize: 2},
		Callbacks{})
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, []int64{4, 5}, ids(s.Messages()))
	require.True(t, s.HasMore())

	n, err := s.LoadPrevious(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []int64{2, 3, 4, 5}, ids(s.Messages()))

	n, err = s.LoadPrevious(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.False(t, s.HasMore())

	n, err = s.LoadPrevious(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, ids(s.Messages()))
}

// Tests the optimistic echo of Send.
func TestSynchronizer_Send(t *testing.T) {
	client := newTestClient(t, "dm")
	cache := newMemCache()
	s := startLive(t, client, "dm", cache)

	var echoed []messaging.Message
	s.cbs.MessagesChanged = func(_ string, msgs []messaging.Message) {
		if echoed == nil {
			echoed = msgs
		}
	}

	sent, err := s.Send(context.Background(), "  hello  ")
	require.NoError(t, err)
	require.Positive(t, sent.ID)
	require.Equal(t, "hello", sent.Body)

	require.Len(t, echoed, 1)
	require.Negative(t, echoed[0].ID)
	require.Equal(t, []int64{sent.ID}, ids(s.Messages()))

	// The pushed copy of our own message does not duplicate it.
	client.Push(messaging.Event{Kind: messaging.MessageReceived,
		ChannelURL: "dm", Message: &sent})
	require.Len(t, s.Messages(), 1)

	cached, _ := cache.Messages("dm")
	require.Len(t, cached, 1)

	client.FailNext("SendMessage", errors.New("offline"))
	_, err = s.Send(context.Background(), "lost")
	require.Error(t, err)
	require.Len(t, s.Messages(), 1)

	_, err = s.Send(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

// Tests the write-through to the sqlite message cache and replay from it.
func TestSynchronizer_SQLiteCache(t *testing.T) {
	cache, err := storage.NewCache("", t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	client := newTestClient(t, "dm")
	s := startLive(t, client, "dm", cache)
	client.Push(received("dm", 7, 100))
	client.Push(received("dm", 5, 90))
	client.Push(messaging.Event{Kind: messaging.MessageDeleted,
		ChannelURL: "dm", MessageIDs: []int64{7}})
	s.Dispose()

	cached, err := cache.Messages("dm")
	require.NoError(t, err)
	require.Equal(t, []int64{5}, ids(cached))
}

// Tests that every merged batch reports its distinct senders, excluding the
// user.
func TestSynchronizer_SendersSeen(t *testing.T) {
	client := newTestClient(t, "dm")
	senders := []string{"42", "43", "42", selfID, "44"}
	for i, sender := range senders {
		client.AddMessage(messaging.Message{ID: int64(i + 1),
			ChannelURL: "dm", SenderID: sender, CreatedAt: int64(i+1) * 10})
	}

	var seen [][]string
	s := NewSynchronizer("dm", selfID, client, nil, Params{PageSize: 3},
		Callbacks{SendersSeen: func(userIDs ...string) {
			seen = append(seen, userIDs)
		}})
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, [][]string{{"42", "44"}}, seen)

	_, err := s.LoadPrevious(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"42", "43"}, seen[1])

	evt := received("dm", 9, 90)
	evt.Message.SenderID = "45"
	client.Push(evt)
	require.Equal(t, []string{"45"}, seen[2])
	require.Len(t, seen, 3)
}
