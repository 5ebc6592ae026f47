package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/aethra/keybot/engine/dispatch"
	"github.com/aethra/keybot/pkg/logger"
)

// Option names as shown in the Discord client.
const (
	optKey   = "key"
	optUser  = "user"
	optOwner = "roblox_user"
	optLabel = "label"
)

func userOption(description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        optUser,
		Description: description,
		Required:    required,
	}
}

func stringOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

// Definitions returns the guild slash commands.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: dispatch.CmdGenerate, Description: "Generate a random Aethra code"},
		{Name: dispatch.CmdScriptPanel, Description: "Aethra Script Access Panel"},
		{
			Name:        dispatch.CmdUserInfo,
			Description: "Check a user's key & info",
			Options:     []*discordgo.ApplicationCommandOption{userOption("Select a user", true)},
		},
		{
			Name:        dispatch.CmdRevokeKey,
			Description: "Revoke a user's key",
			Options:     []*discordgo.ApplicationCommandOption{userOption("Select a user", true)},
		},
		{Name: dispatch.CmdGetScript, Description: "Get your personal script (after redeem)"},
		{
			Name:        dispatch.CmdAddKey,
			Description: "Add a new key with Roblox user",
			Options: []*discordgo.ApplicationCommandOption{
				stringOption(optKey, "The key to add", true),
				stringOption(optOwner, "Roblox username for this key", true),
			},
		},
		{
			Name:        dispatch.CmdRedeem,
			Description: "Redeem a key for yourself or another user (Owner only)",
			Options: []*discordgo.ApplicationCommandOption{
				stringOption(optKey, "The key to redeem", true),
				userOption("Select a user (optional, owner only)", false),
			},
		},
		{Name: dispatch.CmdKeys, Description: "Show all available keys (unused only)"},
		{Name: dispatch.CmdUsedKeys, Description: "List all redeemed keys and their owners (Owner only)"},
		{
			Name:        dispatch.CmdDeleteKey,
			Description: "Delete a key",
			Options: []*discordgo.ApplicationCommandOption{
				stringOption(optKey, "The key to delete (leave empty to pick an unused key)", false),
			},
		},
		{
			Name:        dispatch.CmdUpdateKey,
			Description: "Update the Roblox username for an existing key",
			Options: []*discordgo.ApplicationCommandOption{
				stringOption(optKey, "The key to update", true),
				stringOption(optOwner, "New Roblox username", true),
			},
		},
		{
			Name:        dispatch.CmdReconcile,
			Description: "Compare keys across stores and optionally repair the registry (Owner only)",
			Options: []*discordgo.ApplicationCommandOption{
				stringOption(optLabel, "Owner label for keys missing from the registry; applies the repair", false),
			},
		},
	}
}

// RegisterCommands replaces the guild's slash commands with Definitions.
func RegisterCommands(ctx context.Context, s Session, appID, guildID string) error {
	created, err := s.ApplicationCommandBulkOverwrite(appID, guildID, Definitions(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to register slash commands: %w", err)
	}
	logger.FromContext(ctx).Info("Slash commands registered", "guild", guildID, "count", len(created))
	return nil
}
