////////////////////////////////////////////////////////////////////////////////
// Copyright © 2023 Privategrity Corporation                                   /
//                                                                             /
// All rights reserved.                                                        /
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"time"
)

// Message is the database representation of a cached message.
//
// A Message belongs to one Conversation and is keyed by the conversation URL
// and the server-assigned message ID.
type Message struct {
	ConversationURL string `gorm:"primaryKey;not null"`
	MessageID       int64  `gorm:"primaryKey;autoIncrement:false"`
	SenderID        string `gorm:"index;not null"`
	Body            string `gorm:"not null"`
	Timestamp       int64  `gorm:"index;not null"`
	CustomType      string
	Data            string
}

// TableName overrides the table name used by Message.
func (Message) TableName() string {
	return "ourlog_messages"
}

// Conversation is the database representation of a conversation whose
// messages are cached.
// A Conversation has many Message objects.
type Conversation struct {
	URL      string    `gorm:"primaryKey;not null;autoIncrement:false"`
	SyncedAt time.Time `gorm:"not null"`

	// Have to spell out this relationship because irregular PK name
	Messages []Message `gorm:"foreignKey:ConversationURL;references:URL;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name used by Conversation.
func (Conversation) TableName() string {
	return "ourlog_conversations"
}
