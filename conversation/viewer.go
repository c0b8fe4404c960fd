////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"context"
	"sync"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/ourlog/client/messaging"
)

// Viewer owns the synchronizer of the open conversation. Opening a
// conversation disposes the previous synchronizer before the new one
// subscribes, so at most one is ever live.
type Viewer struct {
	selfID string
	client messaging.Client
	cache  Cache
	params Params
	cbs    Callbacks

	mux     sync.Mutex
	current *Synchronizer
}

// NewViewer creates a Viewer with no open conversation. cache may be nil.
func NewViewer(selfID string, client messaging.Client, cache Cache,
	params Params, cbs Callbacks) *Viewer {
	return &Viewer{
		selfID: selfID,
		client: client,
		cache:  cache,
		params: params,
		cbs:    cbs,
	}
}

// Open disposes the current synchronizer, if any, and starts one for url.
// If the initial load fails the conversation is left closed.
func (v *Viewer) Open(ctx context.Context, url string) (*Synchronizer, error) {
	s := NewSynchronizer(url, v.selfID, v.client, v.cache, v.params, v.cbs)

	v.mux.Lock()
	prev := v.current
	v.current = s
	v.mux.Unlock()

	if prev != nil {
		jww.DEBUG.Printf("[SYNC] Closing %s to open %s", prev.URL(), url)
		prev.Dispose()
	}

	if err := s.Start(ctx); err != nil {
		v.mux.Lock()
		if v.current == s {
			v.current = nil
		}
		v.mux.Unlock()
		return nil, err
	}
	return s, nil
}

// Current returns the open synchronizer, or nil.
func (v *Viewer) Current() *Synchronizer {
	v.mux.Lock()
	defer v.mux.Unlock()
	return v.current
}

// CurrentURL returns the URL of the open conversation, or "".
func (v *Viewer) CurrentURL() string {
	if s := v.Current(); s != nil {
		return s.URL()
	}
	return ""
}

// Close disposes the open synchronizer.
func (v *Viewer) Close() {
	v.mux.Lock()
	s := v.current
	v.current = nil
	v.mux.Unlock()
	if s != nil {
		s.Dispose()
	}
}
