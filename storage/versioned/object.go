////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/xx_network/primitives/netTime"
)

// Object wraps a stored value with its layout version and write time.
type Object struct {
	Version   uint64
	Timestamp time.Time
	Data      []byte
}

// NewObject wraps data at the given version, stamped with the current time.
func NewObject(version uint64, data []byte) *Object {
	return &Object{Version: version, Timestamp: netTime.Now(), Data: data}
}

// Marshal encodes the Object as JSON for ekv.
func (o *Object) Marshal() []byte {
	d, err := json.Marshal(o)
	if err != nil {
		// A struct of plain fields always encodes
		panic(errors.Wrap(err, "failed to encode versioned object"))
	}
	return d
}

// Unmarshal decodes an Object written by Marshal.
func (o *Object) Unmarshal(data []byte) error {
	return json.Unmarshal(data, o)
}
