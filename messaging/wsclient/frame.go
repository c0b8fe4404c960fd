////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package wsclient

import (
	"encoding/json"

	"gitlab.com/ourlog/client/messaging"
)

// Operation names sent in request frames.
const (
	opConnect               = "connect"
	opMyChannels            = "channels.mine"
	opPublicChannels        = "channels.public"
	opCreateDistinctChannel = "channels.createDistinct"
	opCreatePublicChannel   = "channels.createPublic"
	opJoinChannel           = "channels.join"
	opLeaveChannel          = "channels.leave"
	opDeleteChannel         = "channels.delete"
	opRenameChannel         = "channels.rename"
	opSendMessage           = "messages.send"
	opUpdateMessage         = "messages.update"
	opDeleteMessage         = "messages.delete"
	opLoadMessages          = "messages.load"
)

// request is a frame sent to the backend.
type request struct {
	ID     string      `json:"id"`
	Op     string      `json:"op"`
	Params interface{} `json:"params,omitempty"`
}

// frame is anything received from the backend: either a response to a
// request, correlated by ID, or a pushed event.
type frame struct {
	ID     string           `json:"id,omitempty"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  json.RawMessage  `json:"error,omitempty"`
	Event  *messaging.Event `json:"event,omitempty"`
}

type connectParams struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken"`
}

type channelParams struct {
	URL     string   `json:"url,omitempty"`
	Name    string   `json:"name,omitempty"`
	UserIDs []string `json:"userIds,omitempty"`
}

type messageParams struct {
	URL       string                   `json:"url"`
	MessageID int64                    `json:"messageId,omitempty"`
	Content   *messaging.MessageParams `json:"content,omitempty"`
	Query     *messaging.HistoryQuery  `json:"query,omitempty"`
}
