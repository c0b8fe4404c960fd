////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/ourlog/client/storage/versioned"
)

const (
	localPrefix = "local"

	credentialKey     = "token"
	credentialVersion = 0

	profileSummaryKey     = "profileSummary"
	profileSummaryVersion = 0

	pageMarkerKey     = "lastViewedPage-"
	pageMarkerVersion = 0
)

// Local is the persisted client state: the auth credential, a summary of the
// signed-in user's profile, and the last viewed page of each paged list.
//
// Every read is defensive. A missing or malformed entry is reported as absent
// and never as an error.
type Local struct {
	kv *versioned.KV
}

// ProfileSummary is the cached display summary of the signed-in user.
type ProfileSummary struct {
	UserID     string `json:"userId"`
	Nickname   string `json:"nickname"`
	AvatarPath string `json:"avatarPath"`
}

// NewLocal builds a Local on top of the given KV.
func NewLocal(kv *versioned.KV) *Local {
	return &Local{kv: kv.Prefix(localPrefix)}
}

// OpenLocal opens a Local backed by an encrypted file store in dir. An empty
// dir yields an in-memory store.
func OpenLocal(dir, password string) (*Local, error) {
	if dir == "" {
		jww.WARN.Printf("[LOCAL] No storage directory specified, " +
			"using an in-memory store")
		return NewLocal(versioned.NewKV(ekv.MakeMemstore())), nil
	}
	fs, err := ekv.NewFilestore(dir, password)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open local storage in %s", dir)
	}
	return NewLocal(versioned.NewKV(fs)), nil
}

// SetCredential stores the auth credential. Surrounding whitespace is
// trimmed and an empty credential is ignored.
func (l *Local) SetCredential(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return l.kv.Write(credentialKey, credentialVersion, []byte(token))
}

// Credential returns the stored credential, if any.
func (l *Local) Credential() (string, bool) {
	obj, err := l.kv.Get(credentialKey, credentialVersion)
	if err != nil {
		if l.kv.Exists(err) {
			jww.WARN.Printf("[LOCAL] Unreadable credential: %+v", err)
		}
		return "", false
	}
	token := strings.TrimSpace(string(obj.Data))
	return token, token != ""
}

// RemoveCredential deletes the credential. Removing an absent credential is
// not an error.
func (l *Local) RemoveCredential() error {
	err := l.kv.Delete(credentialKey, credentialVersion)
	if err != nil && l.kv.Exists(err) {
		return errors.Wrap(err, "failed to remove credential")
	}
	return nil
}

// SetProfileSummary stores the signed-in user's profile summary.
func (l *Local) SetProfileSummary(ps ProfileSummary) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return err
	}
	return l.kv.Write(profileSummaryKey, profileSummaryVersion, data)
}

// ProfileSummary returns the stored summary. An entry without a user ID is
// treated as absent.
func (l *Local) ProfileSummary() (ProfileSummary, bool) {
	obj, err := l.kv.Get(profileSummaryKey, profileSummaryVersion)
	if err != nil {
		return ProfileSummary{}, false
	}
	var ps ProfileSummary
	if err = json.Unmarshal(obj.Data, &ps); err != nil {
		jww.WARN.Printf("[LOCAL] Malformed profile summary: %+v", err)
		return ProfileSummary{}, false
	}
	if ps.UserID == "" {
		return ProfileSummary{}, false
	}
	return ps, true
}

// SetPageMarker records the last page viewed in the named list.
func (l *Local) SetPageMarker(list string, page int) error {
	return l.kv.Write(pageMarkerKey+list, pageMarkerVersion,
		[]byte(strconv.Itoa(page)))
}

// PageMarker returns the last page viewed in the named list. Negative or
// non-numeric markers are treated as absent.
func (l *Local) PageMarker(list string) (int, bool) {
	obj, err := l.kv.Get(pageMarkerKey+list, pageMarkerVersion)
	if err != nil {
		return 0, false
	}
	page, err := strconv.Atoi(string(obj.Data))
	if err != nil || page < 0 {
		jww.DEBUG.Printf("[LOCAL] Ignoring malformed page marker for %s: %q",
			list, obj.Data)
		return 0, false
	}
	return page, true
}
