////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/ourlog/client/storage/versioned"
)

func newTestLocal() (*Local, *versioned.KV) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	return NewLocal(kv), kv
}

// Tests the credential set, get and remove round trip.
func TestLocal_Credential(t *testing.T) {
	l, _ := newTestLocal()

	_, ok := l.Credential()
	require.False(t, ok, "Credential found in empty store")

	require.NoError(t, l.SetCredential("  abc.def  "))
	token, ok := l.Credential()
	require.True(t, ok)
	require.Equal(t, "abc.def", token)

	require.NoError(t, l.RemoveCredential())
	_, ok = l.Credential()
	require.False(t, ok, "Credential found after removal")

	require.NoError(t, l.RemoveCredential(), "Removing twice must not fail")
}

// Tests that an empty credential is never stored.
func TestLocal_SetCredential_Empty(t *testing.T) {
	l, _ := newTestLocal()
	require.NoError(t, l.SetCredential("   "))
	_, ok := l.Credential()
	require.False(t, ok)
}

// Tests that a malformed profile summary reads as absent.
func TestLocal_ProfileSummary_Malformed(t *testing.T) {
	l, kv := newTestLocal()

	err := kv.Prefix(localPrefix).Set(profileSummaryKey,
		&versioned.Object{Version: profileSummaryVersion, Data: []byte("{")})
	require.NoError(t, err)

	_, ok := l.ProfileSummary()
	require.False(t, ok, "Malformed summary should read as absent")

	expected := ProfileSummary{UserID: "42", Nickname: "ann",
		AvatarPath: "/images/ann_01.jpg"}
	require.NoError(t, l.SetProfileSummary(expected))
	ps, ok := l.ProfileSummary()
	require.True(t, ok)
	require.Equal(t, expected, ps)
}

// Tests page markers, including malformed values.
func TestLocal_PageMarker(t *testing.T) {
	l, kv := newTestLocal()

	_, ok := l.PageMarker("joinable")
	require.False(t, ok)

	require.NoError(t, l.SetPageMarker("joinable", 3))
	page, ok := l.PageMarker("joinable")
	require.True(t, ok)
	require.Equal(t, 3, page)

	err := kv.Prefix(localPrefix).Set(pageMarkerKey+"posts",
		&versioned.Object{Version: pageMarkerVersion, Data: []byte("three")})
	require.NoError(t, err)
	_, ok = l.PageMarker("posts")
	require.False(t, ok, "Non-numeric marker should read as absent")
}
