////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a conversation is not in the directory.
	ErrNotFound = errors.New("the conversation cannot be found")

	// ErrInvalidName is returned when a conversation name is empty after
	// trimming.
	ErrInvalidName = errors.New("the conversation name is empty")

	// ErrNotCreator is returned when renaming or deleting a conversation that
	// is not a group created by the current user.
	ErrNotCreator = errors.New(
		"only the creator of a group conversation can rename or delete it")

	// ErrNoPendingAction is returned by Confirm when nothing is pending.
	ErrNoPendingAction = errors.New("there is no pending action to confirm")

	// ErrActionInFlight is returned by Confirm while a confirmed action is
	// still executing. No backend call is made.
	ErrActionInFlight = errors.New("a confirmed action is already executing")
)

// PartialSuccessError reports that a conversation was created but a
// dependent step failed. Created is usable; the caller should still navigate
// to it.
type PartialSuccessError struct {
	Op      string
	Created Conversation
	Err     error
}

// Error implements error.
func (e *PartialSuccessError) Error() string {
	return fmt.Sprintf("%s succeeded for %s but a follow-up step failed: %v",
		e.Op, e.Created.URL(), e.Err)
}

// Unwrap returns the error of the failed step.
func (e *PartialSuccessError) Unwrap() error {
	return e.Err
}
