package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/aethra/keybot/engine/dispatch"
)

var buttonStyles = map[dispatch.ButtonStyle]discordgo.ButtonStyle{
	dispatch.ButtonSecondary: discordgo.SecondaryButton,
	dispatch.ButtonSuccess:   discordgo.SuccessButton,
	dispatch.ButtonDanger:    discordgo.DangerButton,
}

func renderEmbed(e *dispatch.Embed, now time.Time) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if e.Thumbnail != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	if e.Timestamp {
		out.Timestamp = now.UTC().Format(time.RFC3339)
	}
	return out
}

func renderButtons(buttons []dispatch.Button) []discordgo.MessageComponent {
	row := make([]discordgo.MessageComponent, 0, len(buttons))
	for _, b := range buttons {
		btn := discordgo.Button{
			CustomID: b.CustomID,
			Label:    b.Label,
			Style:    buttonStyles[b.Style],
		}
		if b.Emoji != "" {
			btn.Emoji = &discordgo.ComponentEmoji{Name: b.Emoji}
		}
		row = append(row, btn)
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: row}}
}

// renderResponse builds the private interaction reply for resp.
func renderResponse(resp *dispatch.Response, now time.Time) *discordgo.InteractionResponse {
	if m := resp.Modal; m != nil {
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: m.CustomID,
				Title:    m.Title,
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID: m.Input.CustomID,
							Label:    m.Input.Label,
							Style:    discordgo.TextInputShort,
							Required: true,
						},
					}},
				},
			},
		}
	}
	data := &discordgo.InteractionResponseData{
		Content: resp.Content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}
	if resp.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{renderEmbed(resp.Embed, now)}
	}
	if s := resp.Select; s != nil {
		options := make([]discordgo.SelectMenuOption, 0, len(s.Options))
		for _, o := range s.Options {
			options = append(options, discordgo.SelectMenuOption{Label: o.Label, Value: o.Value})
		}
		data.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    s.CustomID,
					Placeholder: s.Placeholder,
					Options:     options,
				},
			}},
		}
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

// renderPanel builds the public channel message for a panel.
func renderPanel(p *dispatch.Panel, now time.Time) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{renderEmbed(&p.Embed, now)},
		Components: renderButtons(p.Buttons),
	}
}
