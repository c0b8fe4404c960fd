////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/ourlog/client/messaging"
)

const (
	// PaymentCardType marks a message carrying a PaymentCard in its data.
	PaymentCardType = "payment"

	paymentRequestedBody = "Secure payment requested."
	paymentCompletedBody = "Payment completed."
	paymentDeclinedBody  = "Secure payment declined."

	cardNumberLength = 12
)

// PaymentCard is the structured payload of a payment request message.
// Toggling the form and completing the payment both rewrite the whole
// message, so concurrent edits from two clients are last-write-wins.
type PaymentCard struct {
	ItemName      string `json:"itemName"`
	ItemImagePath string `json:"itemImage"`
	Price         int64  `json:"price"`

	IsPaymentFormVisible bool `json:"isPaymentFormVisible"`
	IsPaymentComplete    bool `json:"isPaymentComplete"`
}

// DecodePaymentCard returns the card carried by msg.
func DecodePaymentCard(msg messaging.Message) (PaymentCard, error) {
	if msg.CustomType != PaymentCardType {
		return PaymentCard{}, ErrNotPaymentCard
	}
	var card PaymentCard
	if err := json.Unmarshal([]byte(msg.Data), &card); err != nil {
		return PaymentCard{}, errors.Wrapf(err,
			"malformed payment card in message %d", msg.ID)
	}
	return card, nil
}

func (c PaymentCard) params(body string) (messaging.MessageParams, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return messaging.MessageParams{}, errors.WithStack(err)
	}
	return messaging.MessageParams{
		Body:       body,
		CustomType: PaymentCardType,
		Data:       string(data),
	}, nil
}

// RequestPayment posts a payment card for an item. The form starts hidden
// and the payment incomplete.
func (s *Synchronizer) RequestPayment(ctx context.Context, itemName,
	itemImagePath string, price int64) (messaging.Message, error) {
	p, err := PaymentCard{
		ItemName:      itemName,
		ItemImagePath: itemImagePath,
		Price:         price,
	}.params(paymentRequestedBody)
	if err != nil {
		return messaging.Message{}, err
	}
	return s.send(ctx, p)
}

// DeclinePayment posts a message declining a payment request.
func (s *Synchronizer) DeclinePayment(ctx context.Context) (messaging.Message, error) {
	return s.send(ctx, messaging.MessageParams{Body: paymentDeclinedBody})
}

// TogglePaymentForm shows or hides the payment form of a card.
func (s *Synchronizer) TogglePaymentForm(ctx context.Context,
	messageID int64) (messaging.Message, error) {
	msg, card, err := s.paymentCard(messageID)
	if err != nil {
		return messaging.Message{}, err
	}
	if card.IsPaymentComplete {
		return messaging.Message{}, ErrPaymentComplete
	}

	card.IsPaymentFormVisible = !card.IsPaymentFormVisible
	return s.updatePaymentCard(ctx, msg, card)
}

// CompletePayment marks a card paid with the given 12-digit card number and
// posts a confirmation message. If only the confirmation fails, the updated
// card is returned inside a *PartialSuccessError.
func (s *Synchronizer) CompletePayment(ctx context.Context, messageID int64,
	cardNumber string) (messaging.Message, error) {
	if !validCardNumber(cardNumber) {
		return messaging.Message{}, ErrInvalidCardNumber
	}

	msg, card, err := s.paymentCard(messageID)
	if err != nil {
		return messaging.Message{}, err
	}
	if card.IsPaymentComplete {
		return messaging.Message{}, ErrPaymentComplete
	}

	card.IsPaymentFormVisible = false
	card.IsPaymentComplete = true
	updated, err := s.updatePaymentCard(ctx, msg, card)
	if err != nil {
		return messaging.Message{}, err
	}

	if _, err = s.send(ctx,
		messaging.MessageParams{Body: paymentCompletedBody}); err != nil {
		jww.WARN.Printf("[SYNC] Payment %d completed but the confirmation "+
			"message failed: %+v", messageID, err)
		return updated, &PartialSuccessError{
			Op: "complete payment", Updated: updated, Err: err}
	}
	return updated, nil
}

func (s *Synchronizer) paymentCard(
	messageID int64) (messaging.Message, PaymentCard, error) {
	msg, ok := s.Message(messageID)
	if !ok {
		return messaging.Message{}, PaymentCard{},
			errors.Wrapf(ErrMessageNotFound, "message %d", messageID)
	}
	card, err := DecodePaymentCard(msg)
	return msg, card, err
}

func (s *Synchronizer) updatePaymentCard(ctx context.Context,
	msg messaging.Message, card PaymentCard) (messaging.Message, error) {
	p, err := card.params(msg.Body)
	if err != nil {
		return messaging.Message{}, err
	}

	updated, err := s.client.UpdateMessage(ctx, s.url, msg.ID, p)
	if err != nil {
		return messaging.Message{}, errors.WithMessagef(err,
			"failed to update payment card %d", msg.ID)
	}
	if updated.ChannelURL == "" {
		updated.ChannelURL = s.url
	}
	s.apply(messaging.Event{Kind: messaging.MessageUpdated,
		ChannelURL: s.url, Message: &updated})
	return updated, nil
}

func validCardNumber(n string) bool {
	if len(n) != cardNumberLength {
		return false
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
