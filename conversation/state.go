////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import "strconv"

// State is the lifecycle state of a Synchronizer.
type State uint8

const (
	Uninitialized State = iota
	LoadingCache
	LoadingRemote
	Live
	Disposed
)

// String returns a human-readable name for the State. Used for logging.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case LoadingCache:
		return "LoadingCache"
	case LoadingRemote:
		return "LoadingRemote"
	case Live:
		return "Live"
	case Disposed:
		return "Disposed"
	default:
		return "INVALID STATE " + strconv.Itoa(int(s))
	}
}
