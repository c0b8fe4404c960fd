////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messaging

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/thedevsaddam/gojsonq"
)

// NormalizeHistory turns the raw result of a history load into a clean list
// of messages or an error.
//
// The backend sometimes delivers the page through the error slot. A value in
// that slot is only an error when it has both a numeric code and a string
// message; anything else there is data. Data in the result slot takes
// precedence. An empty or null result is an empty history, not an error.
func NormalizeHistory(raw RawResult) ([]Message, error) {
	if !isEmptyJSON(raw.Err) {
		if sdkErr, ok := ParseSDKError(raw.Err); ok {
			return nil, sdkErr
		}
		if isEmptyJSON(raw.Result) {
			jww.DEBUG.Printf("[MSG] History delivered through the error slot")
			return decodeMessages(raw.Err)
		}
		jww.WARN.Printf("[MSG] Ignoring non-error value in the error slot: %s",
			raw.Err)
	}

	if isEmptyJSON(raw.Result) {
		return []Message{}, nil
	}
	return decodeMessages(raw.Result)
}

// ParseSDKError reports whether the value is a genuine backend error: a JSON
// object with a numeric code and a string message.
func ParseSDKError(data json.RawMessage) (*SDKError, bool) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, false
	}

	jq := gojsonq.New().FromString(string(data))
	code, codeOK := jq.Find("code").(float64)
	jq.Reset()
	msg, msgOK := jq.Find("message").(string)
	if jq.Error() != nil || !codeOK || !msgOK {
		return nil, false
	}
	return &SDKError{Code: int(code), Message: msg}, true
}

func decodeMessages(data json.RawMessage) ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, errors.Wrap(ErrMalformedResult, err.Error())
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

func isEmptyJSON(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
