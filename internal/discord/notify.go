package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/playback"
)

// MessageSender sends plain channel messages. *discordgo.Session implements
// it.
type MessageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts playback announcements to a text channel.
type Notifier struct {
	sender MessageSender
}

var _ playback.Notifier = (*Notifier)(nil)

// NewNotifier returns a notifier sending through sender.
func NewNotifier(sender MessageSender) *Notifier {
	return &Notifier{sender: sender}
}

// Notify implements [playback.Notifier].
func (n *Notifier) Notify(ctx context.Context, channelID, message string) error {
	if _, err := n.sender.ChannelMessageSend(channelID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: notify %s: %w", channelID, err)
	}
	return nil
}
