////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package profiles is the session-lifetime cache of participant display
// profiles. Entries are populated lazily the first time a participant is
// seen and are never invalidated; the first writer for an ID wins.
package profiles

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/golang-collections/collections/set"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/ourlog/client/rest"
)

// Entry is the cached display profile of one user.
type Entry struct {
	UserID     string
	Nickname   string
	AvatarPath string
}

// Fetcher loads a profile from the backend.
type Fetcher interface {
	FetchProfile(ctx context.Context, userID rest.UserID) (rest.Profile, error)
}

// Cache maps user IDs to profiles.
type Cache struct {
	fetcher      Fetcher
	fetchTimeout time.Duration

	mux      sync.RWMutex
	entries  map[string]Entry
	inFlight *set.Set
}

// NewCache creates an empty Cache. fetchTimeout bounds background fetches
// started by Prefetch.
func NewCache(fetcher Fetcher, fetchTimeout time.Duration) *Cache {
	return &Cache{
		fetcher:      fetcher,
		fetchTimeout: fetchTimeout,
		entries:      make(map[string]Entry),
		inFlight:     set.New(),
	}
}

// Get returns the cached entry for userID.
func (c *Cache) Get(userID string) (Entry, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	e, ok := c.entries[userID]
	return e, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return len(c.entries)
}

// Put stores e unless an entry for e.UserID already exists. Returns the entry
// that is cached after the call.
func (c *Cache) Put(e Entry) Entry {
	if e.UserID == "" {
		return e
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	if existing, ok := c.entries[e.UserID]; ok {
		return existing
	}
	c.entries[e.UserID] = e
	return e
}

// Ensure returns the cached entry for userID, fetching it from the backend
// if it is missing.
func (c *Cache) Ensure(ctx context.Context, userID string) (Entry, error) {
	if e, ok := c.Get(userID); ok {
		return e, nil
	}

	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "invalid user ID %q", userID)
	}

	p, err := c.fetcher.FetchProfile(ctx, rest.UserID(id))
	if err != nil {
		return Entry{}, errors.WithMessagef(err,
			"failed to fetch profile of %s", userID)
	}

	return c.Put(Entry{
		UserID:     userID,
		Nickname:   p.Nickname,
		AvatarPath: p.AvatarPath(),
	}), nil
}

// Prefetch starts a background Ensure for each user ID that is neither
// cached nor already being fetched. It does not block. done, if not nil, is
// called once every started fetch has finished.
func (c *Cache) Prefetch(done func(), userIDs ...string) {
	var toFetch []string
	c.mux.Lock()
	for _, id := range userIDs {
		if _, ok := c.entries[id]; ok || id == "" || c.inFlight.Has(id) {
			continue
		}
		c.inFlight.Insert(id)
		toFetch = append(toFetch, id)
	}
	c.mux.Unlock()

	var wg sync.WaitGroup
	for _, id := range toFetch {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(
				context.Background(), c.fetchTimeout)
			defer cancel()

			if _, err := c.Ensure(ctx, id); err != nil {
				jww.WARN.Printf("[PROFILES] %+v", err)
			}

			c.mux.Lock()
			c.inFlight.Remove(id)
			c.mux.Unlock()
		}(id)
	}

	if done != nil {
		go func() {
			wg.Wait()
			done()
		}()
	}
}
