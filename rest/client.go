////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package rest is the client for the application REST backend under /ourlog.
// Every call carries the stored credential as a bearer token and a unique
// request ID. A 403 is treated as an invalid credential: the credential is
// removed and the sign-in redirector is invoked.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"
)

const (
	authorizationHeader = "Authorization"
	requestIDHeader     = "X-Request-ID"
	contentTypeHeader   = "Content-Type"
	jsonContentType     = "application/json"

	// maxErrorBody limits how much of an error response body is kept.
	maxErrorBody = 4096
)

// CredentialStore holds the locally persisted credential.
type CredentialStore interface {
	Credential() (string, bool)
	RemoveCredential() error
}

// Redirector sends the user to the sign-in entry point.
type Redirector interface {
	RedirectToSignIn(reason error)
}

// RedirectFunc adapts a function to a Redirector.
type RedirectFunc func(reason error)

// RedirectToSignIn calls f.
func (f RedirectFunc) RedirectToSignIn(reason error) { f(reason) }

// Client issues authenticated requests to the REST backend.
type Client struct {
	params     Params
	http       *http.Client
	creds      CredentialStore
	redirector Redirector
	limiter    ratelimit.Limiter
}

// NewClient creates a Client. redirector may be nil.
func NewClient(params Params, creds CredentialStore,
	redirector Redirector) *Client {
	rps := params.RequestsPerSecond
	if rps <= 0 {
		rps = GetDefaultParams().RequestsPerSecond
	}
	return &Client{
		params:     params,
		http:       &http.Client{Timeout: params.Timeout},
		creds:      creds,
		redirector: redirector,
		limiter:    ratelimit.New(rps, ratelimit.WithoutSlack),
	}
}

// doJSON sends body (if not nil) as JSON and decodes the response into out
// (if not nil).
func (c *Client) doJSON(ctx context.Context, method, path string,
	body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s %s", method, path)
		}
		reader = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, jsonContentType, reader, out)
}

// do performs one authenticated exchange.
func (c *Client) do(ctx context.Context, method, path, contentType string,
	body io.Reader, out interface{}) error {
	token, ok := c.creds.Credential()
	if !ok {
		c.redirect(ErrNoCredential)
		return ErrNoCredential
	}

	req, err := http.NewRequestWithContext(ctx, method,
		strings.TrimSuffix(c.params.BaseURL, "/")+path, body)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s %s", method, path)
	}
	req.Header.Set(authorizationHeader, "Bearer "+token)
	req.Header.Set(requestIDHeader, uuid.NewString())
	if contentType != "" {
		req.Header.Set(contentTypeHeader, contentType)
	}

	c.limiter.Take()
	jww.DEBUG.Printf("[REST] %s %s (%s)", method, path,
		req.Header.Get(requestIDHeader))

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			jww.WARN.Printf("[REST] Failed to close response body of "+
				"%s %s: %+v", method, path, closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		jww.WARN.Printf("[REST] %s %s was rejected with 403, removing "+
			"credential", method, path)
		if err = c.creds.RemoveCredential(); err != nil {
			jww.ERROR.Printf("[REST] Failed to remove credential: %+v", err)
		}
		authErr := errors.Wrapf(ErrAuthentication, "%s %s", method, path)
		c.redirect(authErr)
		return authErr
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   string(data),
		}
	}

	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "malformed response to %s %s", method, path)
	}
	return nil
}

func (c *Client) redirect(reason error) {
	if c.redirector != nil {
		c.redirector.RedirectToSignIn(reason)
	}
}
