////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"strconv"

	"gitlab.com/ourlog/client/messaging"
)

// Kind distinguishes the two conversation variants.
type Kind uint8

const (
	Direct Kind = iota + 1
	Group
)

// String returns a human-readable name for the Kind. Used for logging.
func (k Kind) String() string {
	switch k {
	case Direct:
		return "Direct"
	case Group:
		return "Group"
	default:
		return "INVALID KIND " + strconv.Itoa(int(k))
	}
}

// Conversation is either a DirectConversation or a GroupConversation. The
// variant is decided once by FromWire; callers switch on the concrete type
// to reach variant-specific fields.
type Conversation interface {
	URL() string
	DisplayName() string
	Kind() Kind
	Participants() []messaging.User
	LastMessage() *messaging.Message
	Muted() bool
	CreatorID() string
	CreatedAt() int64

	// common gives the directory access to the shared fields.
	common() *base
}

// base holds the fields shared by both variants.
type base struct {
	url          string
	participants []messaging.User
	lastMessage  *messaging.Message
	muted        bool
	creatorID    string
	createdAt    int64
}

func (b *base) URL() string                     { return b.url }
func (b *base) LastMessage() *messaging.Message { return b.lastMessage }
func (b *base) Muted() bool                     { return b.muted }
func (b *base) CreatorID() string               { return b.creatorID }
func (b *base) CreatedAt() int64                { return b.createdAt }
func (b *base) common() *base                   { return b }

// Participants returns a copy of the member list.
func (b *base) Participants() []messaging.User {
	return append([]messaging.User(nil), b.participants...)
}

// DirectConversation is a two-party conversation. It has no name of its own;
// it is displayed as the other participant.
type DirectConversation struct {
	base
	Other messaging.User
}

// Kind returns Direct.
func (*DirectConversation) Kind() Kind { return Direct }

// DisplayName returns the other participant's nickname, or their ID when the
// nickname is unknown.
func (d *DirectConversation) DisplayName() string {
	if d.Other.Nickname != "" {
		return d.Other.Nickname
	}
	return d.Other.UserID
}

// GroupConversation is a named conversation, public or private.
type GroupConversation struct {
	base
	Name   string
	Public bool
}

// Kind returns Group.
func (*GroupConversation) Kind() Kind { return Group }

// DisplayName returns the group name, falling back to the URL.
func (g *GroupConversation) DisplayName() string {
	if g.Name != "" {
		return g.Name
	}
	return g.url
}

// CreatedBy returns true if userID created the group.
func (g *GroupConversation) CreatedBy(userID string) bool {
	return g.creatorID != "" && g.creatorID == userID
}

// FromWire decides the variant of a backend channel as seen by selfID. A
// channel is direct when it is distinct, not public and has at most two
// members.
func FromWire(ch messaging.Channel, selfID string) Conversation {
	b := base{
		url:          ch.URL,
		participants: append([]messaging.User(nil), ch.Members...),
		muted:        ch.PushTrigger == messaging.PushTriggerOff,
		creatorID:    ch.CreatorID,
		createdAt:    ch.CreatedAt,
	}
	if ch.LastMessage != nil {
		msg := *ch.LastMessage
		b.lastMessage = &msg
	}

	if ch.IsDistinct && !ch.IsPublic && len(ch.Members) <= 2 {
		d := &DirectConversation{base: b, Other: messaging.User{UserID: selfID}}
		for _, m := range ch.Members {
			if m.UserID != selfID {
				d.Other = m
				break
			}
		}
		return d
	}

	return &GroupConversation{base: b, Name: ch.Name, Public: ch.IsPublic}
}

// CanManage returns true if selfID may rename or delete c.
func CanManage(c Conversation, selfID string) bool {
	g, ok := c.(*GroupConversation)
	return ok && g.CreatedBy(selfID)
}

// clone returns a shallow copy of c with its own base.
func clone(c Conversation) Conversation {
	switch v := c.(type) {
	case *DirectConversation:
		cp := *v
		return &cp
	case *GroupConversation:
		cp := *v
		return &cp
	default:
		return c
	}
}
