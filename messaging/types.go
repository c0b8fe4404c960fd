////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package messaging is the contract this client relies on from the real-time
// messaging backend: session establishment, channel CRUD, message
// send/update/delete, paginated history and pushed change events.
package messaging

import (
	"encoding/json"
	"fmt"
)

// User is the identity the backend reports for a connection or member.
type User struct {
	UserID     string `json:"userId"`
	Nickname   string `json:"nickname,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

// Channel is a channel as the backend sends it. Group only fields are set
// or not depending on the channel kind, so callers should convert it once
// on ingestion instead of inspecting it field by field.
type Channel struct {
	URL         string   `json:"url"`
	Name        string   `json:"name,omitempty"`
	IsDistinct  bool     `json:"isDistinct"`
	IsPublic    bool     `json:"isPublic"`
	CreatorID   string   `json:"creatorId,omitempty"`
	Members     []User   `json:"members,omitempty"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	// PushTrigger is "off" when the user muted the channel.
	PushTrigger string `json:"pushTriggerOption,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

// PushTriggerOff marks a channel the user muted.
const PushTriggerOff = "off"

// Message is a message as the backend sends it.
type Message struct {
	ID         int64  `json:"messageId"`
	ChannelURL string `json:"channelUrl"`
	SenderID   string `json:"senderId"`
	Body       string `json:"message"`
	// CreatedAt is in milliseconds since the epoch.
	CreatedAt  int64  `json:"createdAt"`
	CustomType string `json:"customType,omitempty"`
	// Data is an opaque structured payload, JSON encoded.
	Data string `json:"data,omitempty"`
}

// MessageParams is the content of a message to send or an update to apply.
// Updates replace the whole content.
type MessageParams struct {
	Body       string `json:"message"`
	CustomType string `json:"customType,omitempty"`
	Data       string `json:"data,omitempty"`
}

// HistoryQuery selects one page of history.
type HistoryQuery struct {
	// Before is a timestamp in ms; only older messages are returned. Zero
	// means now.
	Before int64 `json:"before"`
	Limit  int   `json:"limit"`
}

// RawResult is the unprocessed result of a history load. The backend may put
// the data in either slot; see NormalizeHistory.
type RawResult struct {
	Result json.RawMessage `json:"result,omitempty"`
	Err    json.RawMessage `json:"error,omitempty"`
}

// EventKind is the kind of a pushed change event.
type EventKind uint8

const (
	MessageReceived EventKind = iota + 1
	MessageUpdated
	MessageDeleted
	ChannelChanged
	ChannelDeleted
	UserLeft
)

var eventKindNames = map[EventKind]string{
	MessageReceived: "MessageReceived",
	MessageUpdated:  "MessageUpdated",
	MessageDeleted:  "MessageDeleted",
	ChannelChanged:  "ChannelChanged",
	ChannelDeleted:  "ChannelDeleted",
	UserLeft:        "UserLeft",
}

// String returns a human-readable name for the kind. Used for logging.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("INVALID EVENT KIND %d", uint8(k))
}

// Event is a change pushed by the backend.
type Event struct {
	Kind       EventKind `json:"kind"`
	ChannelURL string    `json:"channelUrl"`
	// Message is set for MessageReceived and MessageUpdated.
	Message *Message `json:"message,omitempty"`
	// MessageIDs is set for MessageDeleted.
	MessageIDs []int64 `json:"messageIds,omitempty"`
	// Channel is set for ChannelChanged.
	Channel *Channel `json:"channel,omitempty"`
	// UserID is set for UserLeft.
	UserID string `json:"userId,omitempty"`
}

// EventHandler receives pushed events.
type EventHandler func(evt Event)
