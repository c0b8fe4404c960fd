////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messaging

import "context"

// Client is everything the chat components need from the messaging backend.
// Implementations must be safe for concurrent use.
type Client interface {
	// Connect establishes the session for the application's own user ID
	// using an access token obtained from the application backend.
	Connect(ctx context.Context, userID, accessToken string) (User, error)

	// Disconnect closes the session. Calling it twice is not an error.
	Disconnect() error

	// MyChannels returns the channels the connected user belongs to.
	MyChannels(ctx context.Context) ([]Channel, error)

	// PublicChannels returns the public channels the connected user has not
	// joined.
	PublicChannels(ctx context.Context) ([]Channel, error)

	// CreateDistinctChannel returns the 1:1 channel with the given users,
	// creating it if needed. The backend guarantees one channel per pair.
	CreateDistinctChannel(ctx context.Context, userIDs []string) (Channel, error)

	// CreatePublicChannel creates a public channel with the given handle.
	CreatePublicChannel(ctx context.Context, url, name string) (Channel, error)

	JoinChannel(ctx context.Context, url string) (Channel, error)
	LeaveChannel(ctx context.Context, url string) error
	DeleteChannel(ctx context.Context, url string) error
	RenameChannel(ctx context.Context, url, name string) (Channel, error)

	SendMessage(ctx context.Context, url string, p MessageParams) (Message, error)
	UpdateMessage(ctx context.Context, url string, id int64,
		p MessageParams) (Message, error)
	DeleteMessage(ctx context.Context, url string, id int64) error

	// LoadMessages loads one page of history. Only transport failures are
	// returned as errors; backend level failures are inside the RawResult.
	LoadMessages(ctx context.Context, url string, q HistoryQuery) (RawResult, error)

	// Subscribe registers a handler for pushed events under a unique name.
	Subscribe(name string, h EventHandler) error
	Unsubscribe(name string)
}
