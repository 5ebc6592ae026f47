package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/aethra/keybot/engine/dispatch"
	"github.com/aethra/keybot/pkg/logger"
)

// Handler processes a translated request.
type Handler interface {
	Handle(ctx context.Context, req dispatch.Request) dispatch.Response
}

type Options struct {
	ApplicationID string
	GuildID       string
	// HandleTimeout bounds the work done for one interaction.
	HandleTimeout time.Duration
	Clock         func() time.Time
}

// Bot connects dispatcher requests to Discord interactions.
type Bot struct {
	session Session
	handler Handler
	opts    Options
}

func NewBot(session Session, handler Handler, opts Options) (*Bot, error) {
	if session == nil || handler == nil {
		return nil, errors.New("bot requires a session and a handler")
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Bot{session: session, handler: handler, opts: opts}, nil
}

// HandleInteraction answers one interaction. Interactions from other guilds
// are ignored.
func (b *Bot) HandleInteraction(ctx context.Context, i *discordgo.Interaction) error {
	if b.opts.GuildID != "" && i.GuildID != "" && i.GuildID != b.opts.GuildID {
		return nil
	}
	req, ok := ToRequest(i)
	if !ok {
		logger.FromContext(ctx).Debug("Ignoring unsupported interaction", "type", i.Type.String())
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.opts.HandleTimeout)
	defer cancel()
	now := b.opts.Clock()
	req.Now = now
	resp := b.handler.Handle(ctx, req)
	if resp.Panel != nil {
		if _, err := b.session.ChannelMessageSendComplex(
			i.ChannelID, renderPanel(resp.Panel, now), discordgo.WithContext(ctx),
		); err != nil {
			return fmt.Errorf("failed to post panel: %w", err)
		}
	}
	if err := b.session.InteractionRespond(i, renderResponse(&resp, now), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to respond to %s: %w", req.Command, err)
	}
	return nil
}

// Run opens the gateway, registers slash commands and serves interactions
// until ctx is done.
func Run(ctx context.Context, gw *discordgo.Session, b *Bot) error {
	log := logger.FromContext(ctx)
	remove := gw.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
		if err := b.HandleInteraction(ctx, ic.Interaction); err != nil {
			log.Error("Interaction failed", "error", err)
		}
	})
	defer remove()
	gw.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		if r.User != nil {
			log.Info("Discord gateway ready", "user", userTag(r.User))
		}
	})
	if err := gw.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			log.Warn("Failed to close discord gateway", "error", err)
		}
	}()
	if err := RegisterCommands(ctx, b.session, b.opts.ApplicationID, b.opts.GuildID); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info("Discord bot shutting down")
	return nil
}

// NewGateway builds a discordgo session for token with the intents the bot needs.
func NewGateway(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return s, nil
}
