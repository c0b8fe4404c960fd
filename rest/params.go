////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package rest

import (
	"encoding/json"
	"time"
)

// Params configures the REST client.
type Params struct {
	// BaseURL is the scheme and host of the application backend. Paths under
	// /ourlog are appended to it.
	BaseURL string

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests.
	RequestsPerSecond int

	// ThumbnailSize is the width in pixels that profile images are scaled
	// to before upload. Zero keeps the original size.
	ThumbnailSize uint
}

// GetDefaultParams returns the default REST parameters.
func GetDefaultParams() Params {
	return Params{
		BaseURL:           "http://localhost:8080",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 10,
		ThumbnailSize:     256,
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
