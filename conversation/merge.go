////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"sort"

	"github.com/golang-collections/collections/set"

	"gitlab.com/ourlog/client/messaging"
)

// merge returns the union of existing and incoming keyed by message ID,
// preferring incoming on conflict, in display order.
func merge(existing []messaging.Message,
	incoming ...messaging.Message) []messaging.Message {
	byID := make(map[int64]int, len(existing)+len(incoming))
	out := make([]messaging.Message, 0, len(existing)+len(incoming))
	for _, list := range [][]messaging.Message{existing, incoming} {
		for _, m := range list {
			if i, ok := byID[m.ID]; ok {
				out[i] = m
				continue
			}
			byID[m.ID] = len(out)
			out = append(out, m)
		}
	}
	sortMessages(out)
	return out
}

// replace swaps in updated for the message with the same ID. It reports
// false if no such message exists.
func replace(msgs []messaging.Message, updated messaging.Message) bool {
	for i := range msgs {
		if msgs[i].ID == updated.ID {
			msgs[i] = updated
			sortMessages(msgs)
			return true
		}
	}
	return false
}

// remove drops every message whose ID is in ids.
func remove(msgs []messaging.Message, ids ...int64) []messaging.Message {
	drop := set.New()
	for _, id := range ids {
		drop.Insert(id)
	}
	out := msgs[:0]
	for _, m := range msgs {
		if !drop.Has(m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// sortMessages orders by creation time, then by ID.
func sortMessages(msgs []messaging.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].ID < msgs[j].ID
	})
}
