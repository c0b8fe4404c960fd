////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/ourlog/client/event"
	"gitlab.com/ourlog/client/messaging"
	"gitlab.com/ourlog/client/rest"
	"gitlab.com/ourlog/client/storage"
)

type mockBackend struct {
	token      rest.ChatToken
	tokenErr   error
	profile    rest.Profile
	profileErr error
	exchanges  int
}

func (m *mockBackend) ExchangeChatToken(context.Context) (rest.ChatToken, error) {
	m.exchanges++
	return m.token, m.tokenErr
}

func (m *mockBackend) FetchProfile(context.Context,
	rest.UserID) (rest.Profile, error) {
	return m.profile, m.profileErr
}

type mockRedirector struct {
	mux     sync.Mutex
	reasons []error
}

func (m *mockRedirector) RedirectToSignIn(reason error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.reasons = append(m.reasons, reason)
}

type mockPermissions struct {
	asked chan struct{}
}

func (m *mockPermissions) RequestNotificationPermission(
	ctx context.Context) (bool, error) {
	close(m.asked)
	return true, nil
}

type fixture struct {
	local  *storage.Local
	back   *mockBackend
	msg    *messaging.MockClient
	redir  *mockRedirector
	perms  *mockPermissions
	events chan event.SessionEvent
	bridge *Bridge
}

func newFixture(t *testing.T) *fixture {
	local, err := storage.OpenLocal("", "")
	require.NoError(t, err)

	bus := event.NewSessionBus()
	events := make(chan event.SessionEvent, 10)
	require.NoError(t, bus.RegisterCallback("test",
		func(evt event.SessionEvent) { events <- evt }))
	stop := bus.Service()
	t.Cleanup(func() { _ = stop.Close(time.Second) })

	f := &fixture{
		local: local,
		back: &mockBackend{
			token:   rest.ChatToken{UserID: 42, AccessToken: "chat-token"},
			profile: rest.Profile{UserID: 42, Nickname: "mina"},
		},
		msg:    messaging.NewMockClient(),
		redir:  &mockRedirector{},
		perms:  &mockPermissions{asked: make(chan struct{})},
		events: events,
	}
	f.bridge = NewBridge(GetDefaultParams(), local, f.back, f.msg, bus,
		f.redir, f.perms)
	return f
}

func (f *fixture) nextEvent(t *testing.T) event.SessionEvent {
	select {
	case evt := <-f.events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for session event")
		return event.SessionEvent{}
	}
}

// Tests that Connect uses the application user ID, publishes LoggedIn,
// requests permission and stores the profile summary.
func TestBridge_Connect(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bridge.Login("  credential "))

	s, err := f.bridge.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, "42", s.UserID())
	require.Equal(t, 1, f.msg.CallCount("Connect"))

	evt := f.nextEvent(t)
	require.Equal(t, event.LoggedIn, evt.Kind)
	require.Equal(t, "42", evt.UserID)

	f.bridge.WaitPermission()
	select {
	case <-f.perms.asked:
	default:
		t.Error("Notification permission was not requested")
	}

	summary, ok := f.local.ProfileSummary()
	require.True(t, ok)
	require.Equal(t, "mina", summary.Nickname)
	require.Empty(t, f.redir.reasons)
}

// Tests that a missing credential redirects without calling the backend.
func TestBridge_Connect_NoCredential(t *testing.T) {
	f := newFixture(t)

	_, err := f.bridge.Connect(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)
	require.True(t, rest.IsAuthError(err))
	require.Len(t, f.redir.reasons, 1)
	require.Zero(t, f.back.exchanges)
	require.Zero(t, f.msg.CallCount("Connect"))
}

// Tests that a rejected exchange is returned as an authentication error and
// nothing is retried.
func TestBridge_Connect_Rejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bridge.Login("credential"))
	f.back.tokenErr = errors.Wrap(rest.ErrAuthentication, "POST /ourlog/chat/token")

	_, err := f.bridge.Connect(context.Background())
	require.True(t, rest.IsAuthError(err))
	require.Equal(t, 1, f.back.exchanges)
	require.Zero(t, f.msg.CallCount("Connect"))
}

// Tests that a failed profile fetch does not fail Connect.
func TestBridge_Connect_ProfileFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bridge.Login("credential"))
	f.back.profileErr = errors.New("profile backend down")

	s, err := f.bridge.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)

	summary, ok := f.local.ProfileSummary()
	require.True(t, ok)
	require.Equal(t, "42", summary.UserID)
}

// Tests that Close is idempotent and publishes LoggedOut once.
func TestSession_Close(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bridge.Login("credential"))
	s, err := f.bridge.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, event.LoggedIn, f.nextEvent(t).Kind)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.True(t, s.IsClosed())
	require.Equal(t, 1, f.msg.CallCount("Disconnect"))
	require.Equal(t, event.LoggedOut, f.nextEvent(t).Kind)

	select {
	case evt := <-f.events:
		t.Errorf("Unexpected second event: %s", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

// Tests that Logout removes the credential.
func TestBridge_Logout(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bridge.Login("credential"))

	require.NoError(t, f.bridge.Logout(nil))
	_, ok := f.local.Credential()
	require.False(t, ok)
	require.Equal(t, event.LoggedOut, f.nextEvent(t).Kind)
}
