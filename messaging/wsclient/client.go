////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package wsclient implements messaging.Client over a single websocket.
// Requests and responses are JSON frames correlated by a request ID; pushed
// events arrive on the same socket and are fanned out to subscribers.
package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/ourlog/client/messaging"
	"gitlab.com/ourlog/client/stoppable"
)

const readerStoppable = "MessagingReader"

// Client is a websocket messaging.Client.
type Client struct {
	params Params
	dialer *websocket.Dialer

	mux  sync.Mutex
	link *link

	writeMux sync.Mutex
	handlers sync.Map
}

// link is one connection and the requests waiting on it. pending is guarded
// by Client.mux.
type link struct {
	conn    *websocket.Conn
	reader  *stoppable.Single
	pending map[string]chan frame
}

var _ messaging.Client = (*Client)(nil)

// New creates a Client. No connection is made until Connect.
func New(params Params) *Client {
	return &Client{
		params: params,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: params.HandshakeTimeout,
		},
	}
}

// Connect dials the backend, starts the reader and authenticates as userID.
func (c *Client) Connect(ctx context.Context, userID,
	accessToken string) (messaging.User, error) {
	c.mux.Lock()
	if c.link != nil {
		c.mux.Unlock()
		return messaging.User{}, errors.New("already connected")
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.params.URL, nil)
	if err != nil {
		c.mux.Unlock()
		if resp != nil {
			return messaging.User{}, errors.Wrapf(err,
				"failed to dial %s: status %d", c.params.URL, resp.StatusCode)
		}
		return messaging.User{}, errors.Wrapf(err, "failed to dial %s",
			c.params.URL)
	}
	l := &link{
		conn:    conn,
		reader:  stoppable.NewSingle(readerStoppable),
		pending: make(map[string]chan frame),
	}
	c.link = l
	go c.readFrames(l)
	c.mux.Unlock()

	jww.INFO.Printf("[WS] Connected to %s as %s", c.params.URL, userID)

	var user messaging.User
	err = c.call(ctx, opConnect,
		connectParams{UserID: userID, AccessToken: accessToken}, &user)
	if err != nil {
		_ = c.Disconnect()
		return messaging.User{}, err
	}
	return user, nil
}

// Disconnect closes the socket and waits for the reader to exit.
func (c *Client) Disconnect() error {
	c.mux.Lock()
	l := c.link
	c.link = nil
	c.mux.Unlock()

	if l == nil {
		return nil
	}

	c.writeMux.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.params.WriteTimeout))
	c.writeMux.Unlock()

	closeErr := l.conn.Close()
	if err := l.reader.Close(c.params.CloseTimeout); err != nil {
		return err
	}
	jww.INFO.Printf("[WS] Disconnected from %s", c.params.URL)
	return closeErr
}

func (c *Client) MyChannels(ctx context.Context) ([]messaging.Channel, error) {
	var chs []messaging.Channel
	err := c.call(ctx, opMyChannels, nil, &chs)
	return chs, err
}

func (c *Client) PublicChannels(ctx context.Context) ([]messaging.Channel, error) {
	var chs []messaging.Channel
	err := c.call(ctx, opPublicChannels, nil, &chs)
	return chs, err
}

func (c *Client) CreateDistinctChannel(ctx context.Context,
	userIDs []string) (messaging.Channel, error) {
	var ch messaging.Channel
	err := c.call(ctx, opCreateDistinctChannel,
		channelParams{UserIDs: userIDs}, &ch)
	return ch, err
}

func (c *Client) CreatePublicChannel(ctx context.Context,
	url, name string) (messaging.Channel, error) {
	var ch messaging.Channel
	err := c.call(ctx, opCreatePublicChannel,
		channelParams{URL: url, Name: name}, &ch)
	return ch, err
}

func (c *Client) JoinChannel(ctx context.Context,
	url string) (messaging.Channel, error) {
	var ch messaging.Channel
	err := c.call(ctx, opJoinChannel, channelParams{URL: url}, &ch)
	return ch, err
}

func (c *Client) LeaveChannel(ctx context.Context, url string) error {
	return c.call(ctx, opLeaveChannel, channelParams{URL: url}, nil)
}

func (c *Client) DeleteChannel(ctx context.Context, url string) error {
	return c.call(ctx, opDeleteChannel, channelParams{URL: url}, nil)
}

func (c *Client) RenameChannel(ctx context.Context,
	url, name string) (messaging.Channel, error) {
	var ch messaging.Channel
	err := c.call(ctx, opRenameChannel,
		channelParams{URL: url, Name: name}, &ch)
	return ch, err
}

func (c *Client) SendMessage(ctx context.Context, url string,
	p messaging.MessageParams) (messaging.Message, error) {
	var msg messaging.Message
	err := c.call(ctx, opSendMessage,
		messageParams{URL: url, Content: &p}, &msg)
	return msg, err
}

func (c *Client) UpdateMessage(ctx context.Context, url string, id int64,
	p messaging.MessageParams) (messaging.Message, error) {
	var msg messaging.Message
	err := c.call(ctx, opUpdateMessage,
		messageParams{URL: url, MessageID: id, Content: &p}, &msg)
	return msg, err
}

func (c *Client) DeleteMessage(ctx context.Context, url string, id int64) error {
	return c.call(ctx, opDeleteMessage,
		messageParams{URL: url, MessageID: id}, nil)
}

// LoadMessages returns the response slots untouched; the caller normalizes
// them with messaging.NormalizeHistory.
func (c *Client) LoadMessages(ctx context.Context, url string,
	q messaging.HistoryQuery) (messaging.RawResult, error) {
	f, err := c.roundTrip(ctx, opLoadMessages,
		messageParams{URL: url, Query: &q})
	if err != nil {
		return messaging.RawResult{}, err
	}
	return messaging.RawResult{Result: f.Result, Err: f.Error}, nil
}

// Subscribe registers a handler for pushed events. Handlers run on the
// reader goroutine and must not block on a round trip through this Client.
func (c *Client) Subscribe(name string, h messaging.EventHandler) error {
	if _, exists := c.handlers.LoadOrStore(name, h); exists {
		return errors.Errorf("handler %s already subscribed", name)
	}
	return nil
}

// Unsubscribe removes the named handler.
func (c *Client) Unsubscribe(name string) {
	c.handlers.Delete(name)
}

// call performs a round trip and decodes the result into out. A value in
// the error slot is returned as a *messaging.SDKError when it is a genuine
// backend error and as a protocol error otherwise.
func (c *Client) call(ctx context.Context, op string, params,
	out interface{}) error {
	f, err := c.roundTrip(ctx, op, params)
	if err != nil {
		return err
	}

	if len(f.Error) > 0 && string(f.Error) != "null" {
		if sdkErr, ok := messaging.ParseSDKError(f.Error); ok {
			return sdkErr
		}
		return errors.Errorf("unexpected error payload for %s: %s",
			op, f.Error)
	}

	if out == nil || len(f.Result) == 0 {
		return nil
	}
	if err = json.Unmarshal(f.Result, out); err != nil {
		return errors.Wrapf(err, "malformed %s result", op)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op string,
	params interface{}) (frame, error) {
	c.mux.Lock()
	l := c.link
	if l == nil {
		c.mux.Unlock()
		return frame{}, messaging.ErrNotConnected
	}
	conn := l.conn
	req := request{ID: uuid.NewString(), Op: op, Params: params}
	respCh := make(chan frame, 1)
	l.pending[req.ID] = respCh
	c.mux.Unlock()

	defer func() {
		c.mux.Lock()
		delete(l.pending, req.ID)
		c.mux.Unlock()
	}()

	jww.TRACE.Printf("[WS] -> %s %s", req.Op, req.ID)

	c.writeMux.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.params.WriteTimeout))
	err := conn.WriteJSON(req)
	c.writeMux.Unlock()
	if err != nil {
		return frame{}, errors.Wrapf(err, "failed to send %s", op)
	}

	timer := time.NewTimer(c.params.RequestTimeout)
	defer timer.Stop()

	select {
	case f, ok := <-respCh:
		if !ok {
			return frame{}, errors.Wrapf(messaging.ErrNotConnected,
				"connection lost waiting for %s", op)
		}
		return f, nil
	case <-timer.C:
		return frame{}, errors.Errorf("timed out waiting for %s after %s",
			op, c.params.RequestTimeout)
	case <-ctx.Done():
		return frame{}, errors.Wrapf(ctx.Err(), "waiting for %s", op)
	}
}

// readFrames routes responses to their waiting request and pushes events to
// subscribers until the socket fails or is closed. A link the backend drops
// is released so the client can connect again.
func (c *Client) readFrames(l *link) {
	jww.DEBUG.Printf("[WS] Reader started")
	defer func() {
		c.release(l)
		l.reader.ToStopped()
	}()

	for {
		var f frame
		if err := l.conn.ReadJSON(&f); err != nil {
			select {
			case <-l.reader.Quit():
				jww.DEBUG.Printf("[WS] Reader stopping")
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					jww.INFO.Printf("[WS] Connection closed by backend")
				} else {
					jww.ERROR.Printf("[WS] Read failed: %+v", err)
				}
			}
			return
		}

		if f.Event != nil {
			jww.TRACE.Printf("[WS] <- event %s on %s",
				f.Event.Kind, f.Event.ChannelURL)
			c.dispatch(*f.Event)
			continue
		}

		c.mux.Lock()
		respCh, ok := l.pending[f.ID]
		c.mux.Unlock()
		if !ok {
			jww.WARN.Printf("[WS] Dropping response for unknown request %s",
				f.ID)
			continue
		}
		select {
		case respCh <- f:
		default:
			jww.WARN.Printf("[WS] Dropping duplicate response for %s", f.ID)
		}
	}
}

func (c *Client) dispatch(evt messaging.Event) {
	c.handlers.Range(func(_, h interface{}) bool {
		h.(messaging.EventHandler)(evt)
		return true
	})
}

// release wakes every request waiting on l after its reader exits and
// detaches l if it is still the active link.
func (c *Client) release(l *link) {
	c.mux.Lock()
	defer c.mux.Unlock()
	for reqID, respCh := range l.pending {
		close(respCh)
		delete(l.pending, reqID)
	}
	if c.link == l {
		c.link = nil
		_ = l.conn.Close()
	}
}
