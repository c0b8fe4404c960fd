////////////////////////////////////////////////////////////////////////////////
// Copyright © 2023 Privategrity Corporation                                   /
//                                                                             /
// All rights reserved.                                                        /
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/ourlog/client/messaging"
)

const (
	// Can be provided to SqlLite to create a temporary, in-memory DB.
	temporaryDbPath = "file:%s?mode=memory&cache=shared"

	// Determines maximum runtime (in seconds) of DB queries.
	dbTimeout = 3 * time.Second
)

// newContext builds a context for database operations.
func newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

// Messages returns the cached messages of a conversation ordered by
// timestamp, then ID.
func (c *Cache) Messages(url string) ([]messaging.Message, error) {
	var results []Message
	ctx, cancel := newContext()
	err := c.db.WithContext(ctx).
		Where(&Message{ConversationURL: url}).
		Order("timestamp asc, message_id asc").
		Find(&results).Error
	cancel()
	if err != nil {
		return nil, errors.Errorf("failed to load cached messages of %s: %+v",
			url, err)
	}

	msgs := make([]messaging.Message, len(results))
	for i, m := range results {
		msgs[i] = messaging.Message{
			ID:         m.MessageID,
			ChannelURL: m.ConversationURL,
			SenderID:   m.SenderID,
			Body:       m.Body,
			CreatedAt:  m.Timestamp,
			CustomType: m.CustomType,
			Data:       m.Data,
		}
	}
	jww.TRACE.Printf("[CACHE SQL] Loaded %d messages of %s", len(msgs), url)
	return msgs, nil
}

// Store inserts or replaces msgs in the cache of conversation url.
func (c *Cache) Store(url string, msgs ...messaging.Message) error {
	if err := c.upsertConversation(url); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	rows := make([]Message, len(msgs))
	for i, m := range msgs {
		rows[i] = Message{
			ConversationURL: url,
			MessageID:       m.ID,
			SenderID:        m.SenderID,
			Body:            m.Body,
			Timestamp:       m.CreatedAt,
			CustomType:      m.CustomType,
			Data:            m.Data,
		}
	}

	ctx, cancel := newContext()
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	cancel()
	if err != nil {
		return errors.Errorf("failed to store %d messages of %s: %+v",
			len(rows), url, err)
	}
	jww.DEBUG.Printf("[CACHE SQL] Stored %d messages of %s", len(rows), url)
	return nil
}

// Delete removes the given messages from the cache of conversation url.
// Absent IDs are ignored.
func (c *Cache) Delete(url string, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := newContext()
	err := c.db.WithContext(ctx).
		Where("conversation_url = ? AND message_id IN ?", url, ids).
		Delete(&Message{}).Error
	cancel()
	if err != nil {
		return errors.Errorf("failed to delete messages of %s: %+v", url, err)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (c *Cache) DeleteConversation(url string) error {
	ctx, cancel := newContext()
	defer cancel()
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(&Message{ConversationURL: url}).
			Delete(&Message{}).Error
		if err != nil {
			return err
		}
		return tx.Delete(&Conversation{URL: url}).Error
	})
	if err != nil {
		return errors.Errorf("failed to delete conversation %s: %+v", url, err)
	}
	return nil
}

// upsertConversation creates the conversation row or refreshes its sync
// time.
func (c *Cache) upsertConversation(url string) error {
	convo := Conversation{URL: url, SyncedAt: netTime.Now()}
	ctx, cancel := newContext()
	err := c.db.WithContext(ctx).Save(&convo).Error
	cancel()
	if err != nil {
		return errors.Errorf("failed to upsertConversation: %+v", err)
	}
	return nil
}
