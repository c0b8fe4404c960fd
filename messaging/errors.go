////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messaging

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned by calls made before Connect or after
	// Disconnect.
	ErrNotConnected = errors.New("the messaging session is not connected")

	// ErrMalformedResult is returned when a history result cannot be
	// decoded as a list of messages.
	ErrMalformedResult = errors.New("the history result is malformed")
)

// SDKError is an error reported by the messaging backend itself. It always
// has both a numeric code and a message.
type SDKError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements error.
func (e *SDKError) Error() string {
	return fmt.Sprintf("messaging backend error %d: %s", e.Code, e.Message)
}

// IsSDKError returns true if err is or wraps an SDKError.
func IsSDKError(err error) bool {
	var sdkErr *SDKError
	return errors.As(err, &sdkErr)
}
