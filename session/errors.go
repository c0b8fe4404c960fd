////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"github.com/pkg/errors"

	"gitlab.com/ourlog/client/rest"
)

var (
	// ErrNoCredential is returned by Connect when no credential is stored.
	// It is an authentication error.
	ErrNoCredential = rest.ErrNoCredential

	// ErrNoUserID is returned when neither the token exchange nor the stored
	// profile summary names the signed-in user.
	ErrNoUserID = errors.New("the signed-in user ID is unknown")
)
