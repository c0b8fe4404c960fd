////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/ourlog/client/messaging"
)

// blockingClient holds LeaveChannel until released.
type blockingClient struct {
	*messaging.MockClient
	entered chan struct{}
	release chan struct{}
}

func (b *blockingClient) LeaveChannel(ctx context.Context, url string) error {
	b.entered <- struct{}{}
	<-b.release
	return b.MockClient.LeaveChannel(ctx, url)
}

func newTestGate(t *testing.T) (*Gate, *Directory, *messaging.MockClient) {
	d, client, _ := newTestDirectory(t)
	client.AddChannel(messaging.Channel{URL: "c1", Name: "One",
		CreatorID: selfID}, selfID)
	client.AddChannel(messaging.Channel{URL: "c2", Name: "Two",
		CreatorID: selfID}, selfID)
	client.AddChannel(messaging.Channel{URL: "theirs", Name: "Theirs",
		CreatorID: "9"}, selfID, "9")
	require.NoError(t, d.Load(context.Background()))
	return NewGate(d), d, client
}

// Tests that a new request replaces the previous one and only that row is
// confirming.
func TestGate_RequestAction_LastWins(t *testing.T) {
	g, _, client := newTestGate(t)

	require.NoError(t, g.RequestAction("c1", ActionDelete, ""))
	require.Equal(t, RowConfirming, g.RowMode("c1"))

	require.NoError(t, g.RequestAction("c2", ActionRename, " Renamed "))
	p, ok := g.Pending()
	require.True(t, ok)
	require.Equal(t, PendingAction{ConversationURL: "c2",
		Kind: ActionRename, NewName: "Renamed"}, p)
	require.Equal(t, RowOpenable, g.RowMode("c1"))
	require.Equal(t, RowConfirming, g.RowMode("c2"))
	require.Zero(t, client.CallCount("DeleteChannel"))
	require.Zero(t, client.CallCount("RenameChannel"))
}

// Tests that Confirm clears the pending action on success and on failure.
func TestGate_Confirm_ClearsRegardless(t *testing.T) {
	g, d, client := newTestGate(t)

	require.NoError(t, g.RequestAction("c2", ActionRename, "Renamed"))
	require.NoError(t, g.Confirm(context.Background()))
	_, ok := g.Pending()
	require.False(t, ok)
	c, _ := d.Get("c2")
	require.Equal(t, "Renamed", c.DisplayName())

	require.NoError(t, g.RequestAction("c1", ActionDelete, ""))
	backendErr := errors.New("backend exploded")
	client.FailNext("DeleteChannel", backendErr)
	err := g.Confirm(context.Background())
	require.ErrorIs(t, err, backendErr)
	_, ok = g.Pending()
	require.False(t, ok)
	_, ok = d.Get("c1")
	require.True(t, ok)
	require.Equal(t, RowOpenable, g.RowMode("c1"))

	require.ErrorIs(t, g.Confirm(context.Background()), ErrNoPendingAction)
	require.Equal(t, 1, client.CallCount("DeleteChannel"))
}

// Tests that Cancel never reaches the backend.
func TestGate_Cancel(t *testing.T) {
	g, d, client := newTestGate(t)

	require.NoError(t, g.RequestAction("c1", ActionLeave, ""))
	g.Cancel()
	_, ok := g.Pending()
	require.False(t, ok)
	require.Zero(t, client.CallCount("LeaveChannel"))
	require.Len(t, d.ListMyConversations(), 3)
}

// Tests that rename and delete are refused on conversations the user did not
// create, while leave is allowed.
func TestGate_RequestAction_NotCreator(t *testing.T) {
	g, _, _ := newTestGate(t)

	require.ErrorIs(t, g.RequestAction("theirs", ActionDelete, ""),
		ErrNotCreator)
	require.ErrorIs(t, g.RequestAction("theirs", ActionRename, "x"),
		ErrNotCreator)
	require.ErrorIs(t, g.RequestAction("c1", ActionRename, "  "),
		ErrInvalidName)
	require.ErrorIs(t, g.RequestAction("missing", ActionLeave, ""),
		ErrNotFound)
	_, ok := g.Pending()
	require.False(t, ok)

	require.NoError(t, g.RequestAction("theirs", ActionLeave, ""))
}

// Tests that a second Confirm while the first is executing makes no backend
// call.
func TestGate_Confirm_InFlight(t *testing.T) {
	d, mock, _ := newTestDirectory(t)
	mock.AddChannel(messaging.Channel{URL: "c1", Name: "One"}, selfID)
	client := &blockingClient{MockClient: mock,
		entered: make(chan struct{}, 1), release: make(chan struct{})}
	d.client = client
	require.NoError(t, d.Load(context.Background()))
	g := NewGate(d)

	require.NoError(t, g.RequestAction("c1", ActionLeave, ""))

	done := make(chan error, 1)
	go func() { done <- g.Confirm(context.Background()) }()

	select {
	case <-client.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for leave to start")
	}

	require.ErrorIs(t, g.Confirm(context.Background()), ErrActionInFlight)
	close(client.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for confirm")
	}
	require.Equal(t, 1, mock.CallCount("LeaveChannel"))
	require.Empty(t, d.ListMyConversations())
}

// Tests that clicks never discard a pending action and that confirm/cancel
// clicks leave the menu alone.
func TestGate_HandleClick(t *testing.T) {
	g, _, _ := newTestGate(t)

	require.False(t, g.HandleClick(ClickTarget{Kind: ClickMenu,
		ConversationURL: "c1"}))
	require.Equal(t, "c1", g.MenuOpenFor())

	require.False(t, g.HandleClick(ClickTarget{Kind: ClickConfirm,
		ConversationURL: "c1"}))
	require.Equal(t, "c1", g.MenuOpenFor())

	require.NoError(t, g.RequestAction("c1", ActionLeave, ""))
	require.Empty(t, g.MenuOpenFor())

	require.False(t, g.HandleClick(ClickTarget{Kind: ClickRow,
		ConversationURL: "c1"}))
	require.True(t, g.HandleClick(ClickTarget{Kind: ClickRow,
		ConversationURL: "c2"}))
	require.False(t, g.HandleClick(ClickTarget{Kind: ClickElsewhere}))
	require.False(t, g.HandleClick(ClickTarget{Kind: ClickCancel,
		ConversationURL: "c1"}))

	p, ok := g.Pending()
	require.True(t, ok)
	require.Equal(t, "c1", p.ConversationURL)
}
