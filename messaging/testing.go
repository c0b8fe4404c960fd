////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messaging

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/xx_network/primitives/netTime"
)

var _ Client = (*MockClient)(nil)

// MockClient is an in-memory Client for tests. It keeps channels, members and
// messages in maps and lets tests push events and inject failures.
type MockClient struct {
	mux       sync.Mutex
	connected bool
	self      User

	channels map[string]*Channel
	members  map[string]map[string]bool
	messages map[string][]Message
	nextID   int64

	handlers map[string]EventHandler
	failures map[string]error
	calls    map[string]int

	// RawHistory, if set, replaces the history returned by LoadMessages.
	RawHistory func(url string, q HistoryQuery) RawResult

	// BeforeHistory, if set, is called at the start of LoadMessages
	// without the lock held.
	BeforeHistory func(url string)
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		channels: make(map[string]*Channel),
		members:  make(map[string]map[string]bool),
		messages: make(map[string][]Message),
		nextID:   1000,
		handlers: make(map[string]EventHandler),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailNext makes the next call of the named method return err.
func (m *MockClient) FailNext(method string, err error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.failures[method] = err
}

// CallCount returns how many times the named method was called.
func (m *MockClient) CallCount(method string) int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.calls[method]
}

// AddChannel seeds a channel with the given members.
func (m *MockClient) AddChannel(ch Channel, memberIDs ...string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.addChannelUnsafe(ch, memberIDs...)
}

// AddMessage seeds a message into a channel's history.
func (m *MockClient) AddMessage(msg Message) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.messages[msg.ChannelURL] = append(m.messages[msg.ChannelURL], msg)
}

// Push delivers an event to every subscribed handler on the caller's
// goroutine.
func (m *MockClient) Push(evt Event) {
	m.mux.Lock()
	handlers := make([]EventHandler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mux.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

func (m *MockClient) enter(method string) error {
	m.calls[method]++
	if err, ok := m.failures[method]; ok {
		delete(m.failures, method)
		return err
	}
	if method != "Connect" && !m.connected {
		return ErrNotConnected
	}
	return nil
}

func (m *MockClient) Connect(_ context.Context, userID, accessToken string) (User, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("Connect"); err != nil {
		return User{}, err
	}
	if accessToken == "" {
		return User{}, &SDKError{Code: 400302, Message: "invalid access token"}
	}
	m.connected = true
	m.self = User{UserID: userID}
	return m.self, nil
}

func (m *MockClient) Disconnect() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.calls["Disconnect"]++
	m.connected = false
	return nil
}

func (m *MockClient) MyChannels(context.Context) ([]Channel, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("MyChannels"); err != nil {
		return nil, err
	}
	return m.filterChannelsUnsafe(true), nil
}

func (m *MockClient) PublicChannels(context.Context) ([]Channel, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("PublicChannels"); err != nil {
		return nil, err
	}
	var out []Channel
	for _, ch := range m.filterChannelsUnsafe(false) {
		if ch.IsPublic {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (m *MockClient) CreateDistinctChannel(_ context.Context,
	userIDs []string) (Channel, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("CreateDistinctChannel"); err != nil {
		return Channel{}, err
	}

	ids := append([]string{m.self.UserID}, userIDs...)
	sort.Strings(ids)
	url := "distinct_" + strings.Join(ids, "_")
	if ch, exists := m.channels[url]; exists {
		return m.copyChannelUnsafe(ch), nil
	}

	ch := Channel{URL: url, IsDistinct: true, CreatorID: m.self.UserID,
		CreatedAt: netTime.Now().UnixMilli()}
	m.addChannelUnsafe(ch, ids...)
	return m.copyChannelUnsafe(m.channels[url]), nil
}

func (m *MockClient) CreatePublicChannel(_ context.Context,
	url, name string) (Channel, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("CreatePublicChannel"); err != nil {
		return Channel{}, err
	}
	if _, exists := m.channels[url]; exists {
		return Channel{}, &SDKError{Code: 400202, Message: "channel exists"}
	}
	ch := Channel{URL: url, Name: name, IsPublic: true,
		CreatorID: m.self.UserID, CreatedAt: netTime.Now().UnixMilli()}
	m.addChannelUnsafe(ch, m.self.UserID)
	return m.copyChannelUnsafe(m.channels[url]), nil
}

func (m *MockClient) JoinChannel(_ context.Context, url string) (Channel, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("JoinChannel"); err != nil {
		return Channel{}, err
	}
	ch, exists := m.channels[url]
	if !exists {
		return Channel{}, &SDKError{Code: 400201, Message: "channel not found"}
	}
	m.members[url][m.self.UserID] = true
	return m.copyChannelUnsafe(ch), nil
}

func (m *MockClient) LeaveChannel(_ context.Context, url string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("LeaveChannel"); err != nil {
		return err
	}
	if _, exists := m.channels[url]; !exists {
		return &SDKError{Code: 400201, Message: "channel not found"}
	}
	delete(m.members[url], m.self.UserID)
	return nil
}

func (m *MockClient) DeleteChannel(_ context.Context, url string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("DeleteChannel"); err != nil {
		return err
	}
	if _, exists := m.channels[url]; !exists {
		return &SDKError{Code: 400201, Message: "channel not found"}
	}
	delete(m.channels, url)
	delete(m.members, url)
	delete(m.messages, url)
	return nil
}

func (m *MockClient) RenameChannel(_ context.Context,
	url, name string) (Channel, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("RenameChannel"); err != nil {
		return Channel{}, err
	}
	ch, exists := m.channels[url]
	if !exists {
		return Channel{}, &SDKError{Code: 400201, Message: "channel not found"}
	}
	ch.Name = name
	return m.copyChannelUnsafe(ch), nil
}

func (m *MockClient) SendMessage(_ context.Context, url string,
	p MessageParams) (Message, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("SendMessage"); err != nil {
		return Message{}, err
	}
	if _, exists := m.channels[url]; !exists {
		return Message{}, &SDKError{Code: 400201, Message: "channel not found"}
	}
	m.nextID++
	msg := Message{
		ID:         m.nextID,
		ChannelURL: url,
		SenderID:   m.self.UserID,
		Body:       p.Body,
		CreatedAt:  netTime.Now().UnixMilli(),
		CustomType: p.CustomType,
		Data:       p.Data,
	}
	m.messages[url] = append(m.messages[url], msg)
	m.channels[url].LastMessage = &msg
	return msg, nil
}

func (m *MockClient) UpdateMessage(_ context.Context, url string, id int64,
	p MessageParams) (Message, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("UpdateMessage"); err != nil {
		return Message{}, err
	}
	for i, msg := range m.messages[url] {
		if msg.ID == id {
			msg.Body, msg.CustomType, msg.Data = p.Body, p.CustomType, p.Data
			m.messages[url][i] = msg
			return msg, nil
		}
	}
	return Message{}, &SDKError{Code: 400201, Message: "message not found"}
}

func (m *MockClient) DeleteMessage(_ context.Context, url string, id int64) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("DeleteMessage"); err != nil {
		return err
	}
	msgs := m.messages[url]
	for i, msg := range msgs {
		if msg.ID == id {
			m.messages[url] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return &SDKError{Code: 400201, Message: "message not found"}
}

func (m *MockClient) LoadMessages(_ context.Context, url string,
	q HistoryQuery) (RawResult, error) {
	if m.BeforeHistory != nil {
		m.BeforeHistory(url)
	}

	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.enter("LoadMessages"); err != nil {
		return RawResult{}, err
	}
	if m.RawHistory != nil {
		return m.RawHistory(url, q), nil
	}

	var page []Message
	for _, msg := range m.messages[url] {
		if q.Before == 0 || msg.CreatedAt < q.Before {
			page = append(page, msg)
		}
	}
	sort.Slice(page, func(i, j int) bool {
		return page[i].CreatedAt < page[j].CreatedAt
	})
	if q.Limit > 0 && len(page) > q.Limit {
		page = page[len(page)-q.Limit:]
	}

	data, err := json.Marshal(page)
	if err != nil {
		return RawResult{}, errors.WithStack(err)
	}
	return RawResult{Result: data}, nil
}

func (m *MockClient) Subscribe(name string, h EventHandler) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, exists := m.handlers[name]; exists {
		return errors.Errorf("handler %s already subscribed", name)
	}
	m.handlers[name] = h
	return nil
}

func (m *MockClient) Unsubscribe(name string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.handlers, name)
}

func (m *MockClient) addChannelUnsafe(ch Channel, memberIDs ...string) {
	c := ch
	m.channels[ch.URL] = &c
	if m.members[ch.URL] == nil {
		m.members[ch.URL] = make(map[string]bool)
	}
	for _, uid := range memberIDs {
		m.members[ch.URL][uid] = true
	}
}

func (m *MockClient) copyChannelUnsafe(ch *Channel) Channel {
	c := *ch
	c.Members = nil
	ids := make([]string, 0, len(m.members[ch.URL]))
	for uid := range m.members[ch.URL] {
		ids = append(ids, uid)
	}
	sort.Strings(ids)
	for _, uid := range ids {
		c.Members = append(c.Members, User{UserID: uid})
	}
	return c
}

func (m *MockClient) filterChannelsUnsafe(joined bool) []Channel {
	urls := make([]string, 0, len(m.channels))
	for url := range m.channels {
		if m.members[url][m.self.UserID] == joined {
			urls = append(urls, url)
		}
	}
	sort.Strings(urls)
	out := make([]Channel, 0, len(urls))
	for _, url := range urls {
		out = append(out, m.copyChannelUnsafe(m.channels[url]))
	}
	return out
}
