////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package session exchanges the locally stored credential for a messaging
// session and owns the resulting connection. A Session is an explicit value
// passed to the components that need it.
package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/ourlog/client/event"
	"gitlab.com/ourlog/client/messaging"
	"gitlab.com/ourlog/client/rest"
	"gitlab.com/ourlog/client/storage"
)

// SignInRedirector sends the user to the authentication entry point.
type SignInRedirector = rest.Redirector

// PermissionRequester asks the platform for permission to show
// notifications.
type PermissionRequester interface {
	RequestNotificationPermission(ctx context.Context) (bool, error)
}

// Backend is the part of the REST backend used by the bridge.
type Backend interface {
	ExchangeChatToken(ctx context.Context) (rest.ChatToken, error)
	FetchProfile(ctx context.Context, userID rest.UserID) (rest.Profile, error)
}

// Params configures the bridge.
type Params struct {
	// PermissionTimeout bounds the background notification permission
	// request.
	PermissionTimeout time.Duration
}

// GetDefaultParams returns the default bridge parameters.
func GetDefaultParams() Params {
	return Params{PermissionTimeout: time.Minute}
}

// Bridge turns a stored credential into a connected Session.
type Bridge struct {
	params      Params
	local       *storage.Local
	backend     Backend
	messaging   messaging.Client
	bus         *event.SessionBus
	redirector  SignInRedirector
	permissions PermissionRequester

	// permissionWG tracks background permission requests.
	permissionWG sync.WaitGroup
}

// NewBridge creates a Bridge. redirector and permissions may be nil.
func NewBridge(params Params, local *storage.Local, backend Backend,
	client messaging.Client, bus *event.SessionBus,
	redirector SignInRedirector, permissions PermissionRequester) *Bridge {
	return &Bridge{
		params:      params,
		local:       local,
		backend:     backend,
		messaging:   client,
		bus:         bus,
		redirector:  redirector,
		permissions: permissions,
	}
}

// Login stores a freshly issued credential.
func (b *Bridge) Login(credential string) error {
	if err := b.local.SetCredential(credential); err != nil {
		return errors.WithMessage(err, "failed to store credential")
	}
	jww.INFO.Printf("[SESSION] Credential stored")
	return nil
}

// Logout closes s, if any, and removes the stored credential. LoggedOut is
// published exactly once.
func (b *Bridge) Logout(s *Session) error {
	if s != nil {
		if err := s.Close(); err != nil {
			jww.WARN.Printf("[SESSION] Error closing session on logout: %+v",
				err)
		}
	} else {
		b.bus.Report(event.SessionEvent{
			Kind:      event.LoggedOut,
			Timestamp: netTime.Now(),
		})
	}
	return b.local.RemoveCredential()
}

// Connect exchanges the stored credential for a messaging token and connects
// to the messaging backend as the application user. Authentication errors
// are terminal: the redirector is invoked and the error returned, nothing is
// retried.
func (b *Bridge) Connect(ctx context.Context) (*Session, error) {
	if _, ok := b.local.Credential(); !ok {
		jww.WARN.Printf("[SESSION] No credential stored")
		b.redirect(ErrNoCredential)
		return nil, ErrNoCredential
	}

	// The REST client redirects on its own when the exchange is rejected.
	token, err := b.backend.ExchangeChatToken(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to exchange credential")
	}

	userID := token.UserID.String()
	if token.UserID == 0 {
		summary, ok := b.local.ProfileSummary()
		if !ok {
			return nil, ErrNoUserID
		}
		userID = summary.UserID
	}

	user, err := b.messaging.Connect(ctx, userID, token.AccessToken)
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to connect to messaging as %s", userID)
	}
	if user.UserID == "" {
		user.UserID = userID
	}

	s := newSession(user, b.messaging, b.bus)
	jww.INFO.Printf("[SESSION] Connected as %s", user.UserID)
	b.bus.Report(event.SessionEvent{
		Kind:      event.LoggedIn,
		UserID:    user.UserID,
		Timestamp: netTime.Now(),
	})

	b.requestPermission()
	b.storeProfileSummary(ctx, user)

	return s, nil
}

// WaitPermission blocks until background permission requests have finished.
func (b *Bridge) WaitPermission() {
	b.permissionWG.Wait()
}

func (b *Bridge) requestPermission() {
	if b.permissions == nil {
		return
	}
	b.permissionWG.Add(1)
	go func() {
		defer b.permissionWG.Done()
		ctx, cancel := context.WithTimeout(
			context.Background(), b.params.PermissionTimeout)
		defer cancel()
		granted, err := b.permissions.RequestNotificationPermission(ctx)
		if err != nil {
			jww.WARN.Printf("[SESSION] Notification permission request "+
				"failed: %+v", err)
			return
		}
		jww.INFO.Printf("[SESSION] Notification permission granted: %t",
			granted)
	}()
}

// storeProfileSummary refreshes the locally cached summary of the signed-in
// user. Failures are logged only.
func (b *Bridge) storeProfileSummary(ctx context.Context, user messaging.User) {
	id, err := strconv.ParseInt(user.UserID, 10, 64)
	if err != nil {
		jww.WARN.Printf("[SESSION] Cannot fetch profile of non-numeric "+
			"user %q", user.UserID)
		return
	}

	summary := storage.ProfileSummary{
		UserID:     user.UserID,
		Nickname:   user.Nickname,
		AvatarPath: user.ProfileURL,
	}
	p, err := b.backend.FetchProfile(ctx, rest.UserID(id))
	if err != nil {
		jww.WARN.Printf("[SESSION] Failed to fetch own profile: %+v", err)
	} else {
		summary.Nickname = p.Nickname
		summary.AvatarPath = p.AvatarPath()
	}

	if err = b.local.SetProfileSummary(summary); err != nil {
		jww.WARN.Printf("[SESSION] Failed to store profile summary: %+v", err)
	}
}

func (b *Bridge) redirect(reason error) {
	if b.redirector != nil {
		b.redirector.RedirectToSignIn(reason)
	}
}
