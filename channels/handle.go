////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/gomoji"
)

// defaultSlug is used when nothing of the name survives slugging.
const defaultSlug = "channel"

// publicHandle derives a unique handle for a new public conversation from
// its name and the creation time in milliseconds.
func publicHandle(name string, now time.Time) string {
	return slug(name) + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// slug lower-cases the name with emoji removed and joins runs of letters and
// digits with single dashes.
func slug(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(gomoji.RemoveEmojis(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if sb.Len() == 0 {
		return defaultSlug
	}
	return sb.String()
}
