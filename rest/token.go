////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package rest

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

const chatTokenPath = "/ourlog/chat/token"

// ChatToken is a messaging session token issued for the signed-in user.
type ChatToken struct {
	UserID      UserID `json:"userId"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"`
}

// ExchangeChatToken trades the stored credential for a messaging session
// token. A 403 yields ErrAuthentication.
func (c *Client) ExchangeChatToken(ctx context.Context) (ChatToken, error) {
	var t ChatToken
	if err := c.doJSON(ctx, http.MethodPost, chatTokenPath, nil, &t); err != nil {
		return ChatToken{}, err
	}
	if t.AccessToken == "" {
		return ChatToken{}, errors.Errorf("%s returned no access token",
			chatTokenPath)
	}
	return t, nil
}
