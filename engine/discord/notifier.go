package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/aethra/keybot/engine/dispatch"
)

// ChannelNotifier posts audit notices as embeds to a log channel.
type ChannelNotifier struct {
	session   Session
	channelID string
	clock     func() time.Time
}

var _ dispatch.Notifier = (*ChannelNotifier)(nil)

func NewChannelNotifier(session Session, channelID string) *ChannelNotifier {
	return &ChannelNotifier{session: session, channelID: channelID, clock: time.Now}
}

func (n *ChannelNotifier) Notify(ctx context.Context, notice dispatch.Notice) error {
	embed := renderEmbed(&dispatch.Embed{
		Title:       notice.Title,
		Description: notice.Description,
		Color:       notice.Color,
		Timestamp:   true,
	}, n.clock())
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	if _, err := n.session.ChannelMessageSendComplex(n.channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("post audit notice to %s: %w", n.channelID, err)
	}
	return nil
}
