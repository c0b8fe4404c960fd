////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package rest

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAuthentication is returned when the credential is missing or the
	// backend rejected it with 403. It is terminal; callers redirect to
	// sign-in instead of retrying.
	ErrAuthentication = errors.New("the credential is missing or was rejected")

	// ErrNoCredential is returned when no credential is stored locally.
	ErrNoCredential = errors.Wrap(ErrAuthentication, "no stored credential")
)

// TransportError is a non-2xx response other than 403.
type TransportError struct {
	Method string
	Path   string
	Status int
	Body   string
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s",
		e.Method, e.Path, e.Status, e.Body)
}

// IsAuthError returns true if err is, or wraps, ErrAuthentication.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}
