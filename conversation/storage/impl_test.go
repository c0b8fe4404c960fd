////////////////////////////////////////////////////////////////////////////////
// Copyright © 2023 Privategrity Corporation                                   /
//                                                                             /
// All rights reserved.                                                        /
////////////////////////////////////////////////////////////////////////////////

// sqlite requires cgo, which is not available in wasm
//go:build !js || !wasm

package storage

import (
	"os"
	"testing"

	jww "github.com/spf13/jwalterweatherman"
	"github.com/stretchr/testify/require"

	"gitlab.com/ourlog/client/messaging"
)

func TestMain(m *testing.M) {
	jww.SetStdoutThreshold(jww.LevelDebug)
	os.Exit(m.Run())
}

func newTestCache(t *testing.T) *Cache {
	c, err := NewCache("", t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Tests that stored messages come back in timestamp order and that storing
// the same ID again replaces it.
func TestCache_Store_Messages(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Store("a",
		messaging.Message{ID: 7, SenderID: "2", Body: "late", CreatedAt: 100},
		messaging.Message{ID: 5, SenderID: "1", Body: "early", CreatedAt: 90},
		messaging.Message{ID: 6, SenderID: "1", Body: "tie", CreatedAt: 100}))
	require.NoError(t, c.Store("b",
		messaging.Message{ID: 5, SenderID: "3", Body: "other", CreatedAt: 1}))

	msgs, err := c.Messages("a")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, []int64{5, 6, 7},
		[]int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	require.Equal(t, "a", msgs[0].ChannelURL)

	require.NoError(t, c.Store("a",
		messaging.Message{ID: 7, SenderID: "2", Body: "edited", CreatedAt: 100,
			CustomType: "payment", Data: `{"isPaymentComplete":true}`}))
	msgs, err = c.Messages("a")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "edited", msgs[2].Body)
	require.Equal(t, "payment", msgs[2].CustomType)
}

// Tests Delete and DeleteConversation.
func TestCache_Delete(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Store("a",
		messaging.Message{ID: 1, SenderID: "1", Body: "x", CreatedAt: 1},
		messaging.Message{ID: 2, SenderID: "1", Body: "y", CreatedAt: 2}))

	require.NoError(t, c.Delete("a", 1, 99))
	msgs, err := c.Messages("a")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, int64(2), msgs[0].ID)

	require.NoError(t, c.DeleteConversation("a"))
	msgs, err = c.Messages("a")
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.NoError(t, c.DeleteConversation("never-stored"))
}
