package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/aethra/keybot/engine/key"
)

// RoleGranter grants and removes the buyer role for redeemers.
type RoleGranter struct {
	session Session
	guildID string
	roleID  string
}

var _ key.BenefitGranter = (*RoleGranter)(nil)

func NewRoleGranter(session Session, guildID, roleID string) *RoleGranter {
	return &RoleGranter{session: session, guildID: guildID, roleID: roleID}
}

func (g *RoleGranter) Grant(ctx context.Context, requesterID string) error {
	if err := g.session.GuildMemberRoleAdd(g.guildID, requesterID, g.roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add role %s to %s: %w", g.roleID, requesterID, err)
	}
	return nil
}

func (g *RoleGranter) Revoke(ctx context.Context, requesterID string) error {
	if err := g.session.GuildMemberRoleRemove(g.guildID, requesterID, g.roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("remove role %s from %s: %w", g.roleID, requesterID, err)
	}
	return nil
}
