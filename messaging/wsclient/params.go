////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package wsclient

import (
	"encoding/json"
	"time"
)

// Params configures the websocket transport.
type Params struct {
	// URL of the messaging backend websocket endpoint.
	URL string

	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration

	// RequestTimeout bounds every request/response round trip when the
	// caller's context has no earlier deadline.
	RequestTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// CloseTimeout bounds how long Disconnect waits for the reader.
	CloseTimeout time.Duration
}

// GetDefaultParams returns the default transport parameters.
func GetDefaultParams() Params {
	return Params{
		URL:              "ws://localhost:8081/ws",
		HandshakeTimeout: 10 * time.Second,
		RequestTimeout:   15 * time.Second,
		WriteTimeout:     10 * time.Second,
		CloseTimeout:     5 * time.Second,
	}
}

// ParseParams overrides the defaults with the given JSON.
func ParseParams(data string) (Params, error) {
	p := GetDefaultParams()
	if len(data) > 0 {
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return Params{}, err
		}
	}
	return p, nil
}
