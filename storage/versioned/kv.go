////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package versioned stores values in an ekv store under keys that carry the
// value's layout version, so a layout change never reads old bytes as new.
package versioned

import (
	"strconv"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
)

// PrefixSeparator is appended to every prefix.
const PrefixSeparator = "/"

// KV is a view of an ekv store restricted to one key prefix. Views made with
// Prefix share the store.
type KV struct {
	store  ekv.KeyValue
	prefix string
}

// NewKV creates a versioned KV backed by the given ekv store.
func NewKV(store ekv.KeyValue) *KV {
	return &KV{store: store}
}

// Prefix returns a view whose keys are nested under prefix.
func (v *KV) Prefix(prefix string) *KV {
	return &KV{store: v.store, prefix: v.prefix + prefix + PrefixSeparator}
}

// Get loads the object stored under key at the given version.
func (v *KV) Get(key string, version uint64) (*Object, error) {
	full := v.fullKey(key, version)
	jww.TRACE.Printf("[KV] get %s", full)
	obj := &Object{}
	if err := v.store.Get(full, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Set stores obj under key at obj's version.
func (v *KV) Set(key string, obj *Object) error {
	full := v.fullKey(key, obj.Version)
	jww.TRACE.Printf("[KV] set %s", full)
	return v.store.Set(full, obj)
}

// Write stores data under key at version, stamped with the current time.
func (v *KV) Write(key string, version uint64, data []byte) error {
	return v.Set(key, NewObject(version, data))
}

// Delete removes the object stored under key at the given version.
func (v *KV) Delete(key string, version uint64) error {
	full := v.fullKey(key, version)
	jww.TRACE.Printf("[KV] delete %s", full)
	return v.store.Delete(full)
}

// Exists returns false if err means the key was not found.
func (v *KV) Exists(err error) bool {
	return ekv.Exists(err)
}

func (v *KV) fullKey(key string, version uint64) string {
	return v.prefix + key + "_" + strconv.FormatUint(version, 10)
}
