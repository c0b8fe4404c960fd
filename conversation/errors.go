////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"fmt"

	"github.com/pkg/errors"

	"gitlab.com/ourlog/client/messaging"
)

var (
	// ErrDisposed is returned when a result arrives for a synchronizer that
	// has been disposed. The result is dropped.
	ErrDisposed = errors.New("the conversation synchronizer is disposed")

	// ErrNotLive is returned by operations that need the initial load to
	// have finished.
	ErrNotLive = errors.New("the conversation is not live yet")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("the conversation synchronizer was " +
		"already started")

	// ErrEmptyMessage is returned when sending a blank message.
	ErrEmptyMessage = errors.New("the message is empty")

	// ErrMessageNotFound is returned when a message is not in the log.
	ErrMessageNotFound = errors.New("the message cannot be found")

	// ErrNotPaymentCard is returned when a payment operation targets a
	// message without a payment card.
	ErrNotPaymentCard = errors.New("the message is not a payment card")

	// ErrPaymentComplete is returned when acting on a completed payment.
	ErrPaymentComplete = errors.New("the payment is already complete")

	// ErrInvalidCardNumber is returned when the card number is not exactly
	// 12 digits.
	ErrInvalidCardNumber = errors.New("the card number must be 12 digits")
)

// PartialSuccessError reports that the primary update succeeded but a
// follow-up message could not be sent.
type PartialSuccessError struct {
	Op      string
	Updated messaging.Message
	Err     error
}

// Error implements error.
func (e *PartialSuccessError) Error() string {
	return fmt.Sprintf("%s succeeded for message %d but a follow-up step "+
		"failed: %v", e.Op, e.Updated.ID, e.Err)
}

// Unwrap returns the error of the failed step.
func (e *PartialSuccessError) Unwrap() error {
	return e.Err
}
