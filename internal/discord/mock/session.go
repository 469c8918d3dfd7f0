// Package mock provides test doubles for the parts of *discordgo.Session the
// bot layer talks to.
package mock

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// InteractionResponder records interaction responses for test assertions.
type InteractionResponder struct {
	mu sync.Mutex

	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// FollowUps records all FollowupMessageCreate calls.
	FollowUps []*discordgo.WebhookParams

	// Edits records all InteractionResponseEdit calls.
	Edits []*discordgo.WebhookEdit

	// Err is returned by every method when non-nil.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *InteractionResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// InteractionResponseEdit records the edit and returns a stub message.
func (m *InteractionResponder) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edits = append(m.Edits, edit)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-original"}, nil
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *InteractionResponder) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FollowUps = append(m.FollowUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// LastResponse returns the most recently recorded response, or nil.
func (m *InteractionResponder) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastEdit returns the most recently recorded response edit, or nil.
func (m *InteractionResponder) LastEdit() *discordgo.WebhookEdit {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Edits) == 0 {
		return nil
	}
	return m.Edits[len(m.Edits)-1]
}

// Reset clears all recorded interactions and errors.
func (m *InteractionResponder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = nil
	m.FollowUps = nil
	m.Edits = nil
	m.Err = nil
}

// SentMessage is one recorded ChannelMessageSend or ChannelMessageSendComplex
// call.
type SentMessage struct {
	ChannelID string
	ID        string
	Data      *discordgo.MessageSend
}

// Channel records channel message traffic.
type Channel struct {
	mu sync.Mutex

	Sent    []SentMessage
	Edited  []*discordgo.MessageEdit
	Deleted []string

	// SendErr, EditErr and DeleteErr are returned by the matching methods.
	SendErr   error
	EditErr   error
	DeleteErr error

	seq int
}

// ChannelMessageSend records a plain text message.
func (c *Channel) ChannelMessageSend(channelID, content string, opts ...discordgo.RequestOption) (*discordgo.Message, error) {
	return c.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: content}, opts...)
}

// ChannelMessageSendComplex records the message and returns it with a
// generated id.
func (c *Channel) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return nil, c.SendErr
	}
	c.seq++
	id := fmt.Sprintf("msg-%d", c.seq)
	c.Sent = append(c.Sent, SentMessage{ChannelID: channelID, ID: id, Data: data})
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: data.Content}, nil
}

// ChannelMessageEditComplex records the edit.
func (c *Channel) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Edited = append(c.Edited, m)
	if c.EditErr != nil {
		return nil, c.EditErr
	}
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel}, nil
}

// ChannelMessageDelete records the deleted message id.
func (c *Channel) ChannelMessageDelete(_, messageID string, _ ...discordgo.RequestOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deleted = append(c.Deleted, messageID)
	return c.DeleteErr
}

// SentCount returns the number of messages sent.
func (c *Channel) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// EditCount returns the number of edits.
func (c *Channel) EditCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Edited)
}

// DeletedIDs returns a copy of the deleted message ids.
func (c *Channel) DeletedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Deleted...)
}

// LastSent returns the most recent message, or the zero value.
func (c *Channel) LastSent() SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Sent) == 0 {
		return SentMessage{}
	}
	return c.Sent[len(c.Sent)-1]
}
