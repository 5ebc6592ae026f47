package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/aethra/keybot/engine/dispatch"
)

var buttonCommands = map[string]string{
	dispatch.ButtonGetScript: dispatch.CmdGetScript,
	dispatch.ButtonRedeemKey: dispatch.CmdRedeemPrompt,
	dispatch.ButtonResetKey:  dispatch.CmdResetCheck,
}

// ToRequest translates an interaction into a dispatcher request. It returns
// false for interactions the bot does not handle.
func ToRequest(i *discordgo.Interaction) (dispatch.Request, bool) {
	caller := interactionUser(i)
	if caller == nil {
		return dispatch.Request{}, false
	}
	req := dispatch.Request{
		Caller: dispatch.Caller{ID: caller.ID, Tag: userTag(caller)},
		Args:   map[string]string{},
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		req.Command = data.Name
		req.Source = dispatch.SourceCommand
		commandArgs(req.Args, &data)
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		switch data.CustomID {
		case dispatch.SelectDeleteKey:
			if len(data.Values) == 0 {
				return dispatch.Request{}, false
			}
			req.Command = dispatch.CmdDeleteKey
			req.Source = dispatch.SourceSelect
			req.Args[dispatch.ArgKey] = data.Values[0]
		default:
			cmd, ok := buttonCommands[data.CustomID]
			if !ok {
				return dispatch.Request{}, false
			}
			req.Command = cmd
			req.Source = dispatch.SourceButton
		}
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		req.Source = dispatch.SourceModal
		switch data.CustomID {
		case dispatch.ModalRedeemKey:
			req.Command = dispatch.CmdRedeem
			req.Args[dispatch.ArgKey] = textInputValue(data.Components, dispatch.InputRedeemKey)
		case dispatch.ModalUpdateOwner:
			req.Command = dispatch.CmdReset
			req.Args[dispatch.ArgOwner] = textInputValue(data.Components, dispatch.InputOwnerName)
		default:
			return dispatch.Request{}, false
		}
	default:
		return dispatch.Request{}, false
	}
	return req, true
}

func commandArgs(args map[string]string, data *discordgo.ApplicationCommandInteractionData) {
	for _, opt := range data.Options {
		value, _ := opt.Value.(string)
		switch opt.Name {
		case optKey:
			args[dispatch.ArgKey] = value
		case optOwner:
			args[dispatch.ArgOwner] = value
		case optLabel:
			args[dispatch.ArgLabel] = value
		case optUser:
			args[dispatch.ArgUser] = value
			args[dispatch.ArgUserTag] = "<@" + value + ">"
			if data.Resolved == nil {
				continue
			}
			if u, ok := data.Resolved.Users[value]; ok && u != nil {
				args[dispatch.ArgUserTag] = userTag(u)
				args[dispatch.ArgUserAvatar] = u.AvatarURL("")
			}
		}
	}
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func userTag(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

func textInputValue(components []discordgo.MessageComponent, customID string) string {
	for _, c := range components {
		var row []discordgo.MessageComponent
		switch v := c.(type) {
		case *discordgo.ActionsRow:
			row = v.Components
		case discordgo.ActionsRow:
			row = v.Components
		}
		for _, inner := range row {
			switch input := inner.(type) {
			case *discordgo.TextInput:
				if input.CustomID == customID {
					return input.Value
				}
			case discordgo.TextInput:
				if input.CustomID == customID {
					return input.Value
				}
			}
		}
	}
	return ""
}
