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
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/ourlog/client/messaging"
)

// Tests that opening B disposes A first and that late events for A change
// nothing.
func TestViewer_Open_DisposesPrevious(t *testing.T) {
	client := newTestClient(t, "a", "b")
	v := NewViewer(selfID, client, nil, GetDefaultParams(), Callbacks{})

	a, err := v.Open(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, "a", v.CurrentURL())
	client.Push(received("a", 1, 10))
	require.Len(t, a.Messages(), 1)

	b, err := v.Open(context.Background(), "b")
	require.NoError(t, err)
	require.Equal(t, Disposed, a.State())
	require.Equal(t, Live, b.State())
	require.Same(t, b, v.Current())

	client.Push(received("a", 2, 20))
	a.HandleEvent(received("a", 3, 30))
	require.Equal(t, []int64{1}, ids(a.Messages()))
	require.Empty(t, b.Messages())

	client.Push(received("b", 4, 40))
	require.Equal(t, []int64{4}, ids(b.Messages()))

	_, err = a.Send(context.Background(), "late")
	require.ErrorIs(t, err, ErrDisposed)
}

// Tests that a result arriving after disposal is dropped.
func TestViewer_Open_DisposedDuringLoad(t *testing.T) {
	client := newTestClient(t, "a", "b")
	v := NewViewer(selfID, client, nil, GetDefaultParams(), Callbacks{})

	client.AddMessage(messaging.Message{ID: 9, ChannelURL: "a",
		SenderID: "42", CreatedAt: 1})
	var a *Synchronizer
	client.BeforeHistory = func(url string) {
		if url == "a" {
			a = v.Current()
			client.BeforeHistory = nil
			v.Close()
		}
	}

	_, err := v.Open(context.Background(), "a")
	require.ErrorIs(t, err, ErrDisposed)
	require.Nil(t, v.Current())
	require.Empty(t, a.Messages())
}

// Tests that a failed initial load leaves no conversation open.
func TestViewer_Open_Error(t *testing.T) {
	client := newTestClient(t, "a")
	client.RawHistory = func(string, messaging.HistoryQuery) messaging.RawResult {
		return messaging.RawResult{Err: json.RawMessage(
			`{"code":400201,"message":"channel not found"}`)}
	}
	v := NewViewer(selfID, client, nil, GetDefaultParams(), Callbacks{})

	_, err := v.Open(context.Background(), "a")
	require.Error(t, err)
	require.Empty(t, v.CurrentURL())
}
