package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/keybot/engine/dispatch"
)

type roleCall struct {
	guild, user, role string
	add               bool
}

type fakeSession struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	messages  map[string][]*discordgo.MessageSend
	roles     []roleCall
	commands  []*discordgo.ApplicationCommand
	err       error
}

func newFakeSession() *fakeSession {
	return &fakeSession{messages: map[string][]*discordgo.MessageSend{}}
}

func (f *fakeSession) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return f.err
}

func (f *fakeSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.messages[channelID] = append(f.messages[channelID], data)
	return &discordgo.Message{ChannelID: channelID}, nil
}

func (f *fakeSession) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles = append(f.roles, roleCall{guildID, userID, roleID, true})
	return f.err
}

func (f *fakeSession) GuildMemberRoleRemove(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles = append(f.roles, roleCall{guildID, userID, roleID, false})
	return f.err
}

func (f *fakeSession) ApplicationCommandBulkOverwrite(
	_, _ string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.commands = commands
	return commands, nil
}

type stubHandler struct {
	got  []dispatch.Request
	resp dispatch.Response
}

func (h *stubHandler) Handle(_ context.Context, req dispatch.Request) dispatch.Response {
	h.got = append(h.got, req)
	return h.resp
}

func member(id, name string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id, Username: name, Discriminator: "0"}}
}

func slash(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g",
		Member:  member("1", "alice"),
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}
}

func TestToRequest(t *testing.T) {
	t.Run("Should map slash command options", func(t *testing.T) {
		i := slash(dispatch.CmdAddKey,
			&discordgo.ApplicationCommandInteractionDataOption{
				Name: optKey, Type: discordgo.ApplicationCommandOptionString, Value: "K",
			},
			&discordgo.ApplicationCommandInteractionDataOption{
				Name: optOwner, Type: discordgo.ApplicationCommandOptionString, Value: "Neo",
			},
		)
		req, ok := ToRequest(i)
		require.True(t, ok)
		assert.Equal(t, dispatch.CmdAddKey, req.Command)
		assert.Equal(t, dispatch.SourceCommand, req.Source)
		assert.Equal(t, dispatch.Caller{ID: "1", Tag: "alice"}, req.Caller)
		assert.Equal(t, "K", req.Arg(dispatch.ArgKey))
		assert.Equal(t, "Neo", req.Arg(dispatch.ArgOwner))
	})
	t.Run("Should resolve user options", func(t *testing.T) {
		i := slash(dispatch.CmdUserInfo, &discordgo.ApplicationCommandInteractionDataOption{
			Name: optUser, Type: discordgo.ApplicationCommandOptionUser, Value: "2",
		})
		data := i.Data.(discordgo.ApplicationCommandInteractionData)
		data.Resolved = &discordgo.ApplicationCommandInteractionDataResolved{
			Users: map[string]*discordgo.User{"2": {ID: "2", Username: "bob", Discriminator: "42"}},
		}
		i.Data = data
		req, ok := ToRequest(i)
		require.True(t, ok)
		assert.Equal(t, "2", req.Arg(dispatch.ArgUser))
		assert.Equal(t, "bob#42", req.Arg(dispatch.ArgUserTag))
		assert.NotEmpty(t, req.Arg(dispatch.ArgUserAvatar))
	})
	t.Run("Should map panel buttons", func(t *testing.T) {
		cases := map[string]string{
			dispatch.ButtonGetScript: dispatch.CmdGetScript,
			dispatch.ButtonRedeemKey: dispatch.CmdRedeemPrompt,
			dispatch.ButtonResetKey:  dispatch.CmdResetCheck,
		}
		for id, cmd := range cases {
			req, ok := ToRequest(&discordgo.Interaction{
				Type:   discordgo.InteractionMessageComponent,
				Member: member("1", "alice"),
				Data:   discordgo.MessageComponentInteractionData{CustomID: id},
			})
			require.True(t, ok)
			assert.Equal(t, cmd, req.Command)
			assert.Equal(t, dispatch.SourceButton, req.Source)
		}
	})
	t.Run("Should map the delete select menu", func(t *testing.T) {
		req, ok := ToRequest(&discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			User: &discordgo.User{ID: "1", Username: "alice"},
			Data: discordgo.MessageComponentInteractionData{
				CustomID: dispatch.SelectDeleteKey, Values: []string{"K"},
			},
		})
		require.True(t, ok)
		assert.Equal(t, dispatch.CmdDeleteKey, req.Command)
		assert.Equal(t, dispatch.SourceSelect, req.Source)
		assert.Equal(t, "K", req.Arg(dispatch.ArgKey))
	})
	t.Run("Should read modal text inputs", func(t *testing.T) {
		req, ok := ToRequest(&discordgo.Interaction{
			Type:   discordgo.InteractionModalSubmit,
			Member: member("1", "alice"),
			Data: discordgo.ModalSubmitInteractionData{
				CustomID: dispatch.ModalUpdateOwner,
				Components: []discordgo.MessageComponent{
					&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
						&discordgo.TextInput{CustomID: dispatch.InputOwnerName, Value: "Neo"},
					}},
				},
			},
		})
		require.True(t, ok)
		assert.Equal(t, dispatch.CmdReset, req.Command)
		assert.Equal(t, dispatch.SourceModal, req.Source)
		assert.Equal(t, "Neo", req.Arg(dispatch.ArgOwner))
	})
	t.Run("Should ignore unknown components", func(t *testing.T) {
		_, ok := ToRequest(&discordgo.Interaction{
			Type:   discordgo.InteractionMessageComponent,
			Member: member("1", "alice"),
			Data:   discordgo.MessageComponentInteractionData{CustomID: "other"},
		})
		assert.False(t, ok)
	})
}

func TestBot_HandleInteraction(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	newBot := func(t *testing.T, s Session, h Handler) *Bot {
		t.Helper()
		b, err := NewBot(s, h, Options{GuildID: "g", Clock: func() time.Time { return now }})
		require.NoError(t, err)
		return b
	}
	t.Run("Should reply privately with content", func(t *testing.T) {
		s := newFakeSession()
		h := &stubHandler{resp: dispatch.Response{Content: "hi"}}
		require.NoError(t, newBot(t, s, h).HandleInteraction(t.Context(), slash(dispatch.CmdKeys)))
		require.Len(t, h.got, 1)
		assert.Equal(t, now, h.got[0].Now)
		require.Len(t, s.responses, 1)
		resp := s.responses[0]
		assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
		assert.Equal(t, "hi", resp.Data.Content)
		assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	})
	t.Run("Should post panels to the channel", func(t *testing.T) {
		s := newFakeSession()
		h := &stubHandler{resp: dispatch.Response{
			Content: "opened",
			Panel: &dispatch.Panel{
				Embed:   dispatch.Embed{Title: "Panel", Timestamp: true},
				Buttons: []dispatch.Button{{CustomID: "a", Label: "A", Emoji: "📜"}},
			},
		}}
		i := slash(dispatch.CmdScriptPanel)
		i.ChannelID = "chan"
		require.NoError(t, newBot(t, s, h).HandleInteraction(t.Context(), i))
		require.Len(t, s.messages["chan"], 1)
		msg := s.messages["chan"][0]
		assert.Equal(t, "Panel", msg.Embeds[0].Title)
		assert.Equal(t, now.Format(time.RFC3339), msg.Embeds[0].Timestamp)
		row := msg.Components[0].(discordgo.ActionsRow)
		assert.Equal(t, "a", row.Components[0].(discordgo.Button).CustomID)
	})
	t.Run("Should open modals", func(t *testing.T) {
		s := newFakeSession()
		h := &stubHandler{resp: dispatch.Response{Modal: &dispatch.Modal{
			CustomID: dispatch.ModalRedeemKey, Title: "Redeem",
			Input: dispatch.TextInput{CustomID: dispatch.InputRedeemKey, Label: "Key"},
		}}}
		require.NoError(t, newBot(t, s, h).HandleInteraction(t.Context(), slash(dispatch.CmdKeys)))
		resp := s.responses[0]
		assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
		assert.Equal(t, dispatch.ModalRedeemKey, resp.Data.CustomID)
	})
	t.Run("Should ignore other guilds", func(t *testing.T) {
		s := newFakeSession()
		h := &stubHandler{}
		i := slash(dispatch.CmdKeys)
		i.GuildID = "other"
		require.NoError(t, newBot(t, s, h).HandleInteraction(t.Context(), i))
		assert.Empty(t, h.got)
		assert.Empty(t, s.responses)
	})
	t.Run("Should return respond errors", func(t *testing.T) {
		s := newFakeSession()
		s.err = errors.New("unknown interaction")
		err := newBot(t, s, &stubHandler{}).HandleInteraction(t.Context(), slash(dispatch.CmdKeys))
		require.Error(t, err)
	})
}

func TestRoleGranter(t *testing.T) {
	t.Run("Should add and remove the configured role", func(t *testing.T) {
		s := newFakeSession()
		g := NewRoleGranter(s, "g", "role")
		require.NoError(t, g.Grant(t.Context(), "1"))
		require.NoError(t, g.Revoke(t.Context(), "1"))
		assert.Equal(t, []roleCall{{"g", "1", "role", true}, {"g", "1", "role", false}}, s.roles)
	})
	t.Run("Should wrap session errors", func(t *testing.T) {
		s := newFakeSession()
		s.err = errors.New("missing access")
		err := NewRoleGranter(s, "g", "role").Grant(t.Context(), "1")
		require.ErrorContains(t, err, "missing access")
	})
}

func TestChannelNotifier(t *testing.T) {
	t.Run("Should post an embed to the audit channel", func(t *testing.T) {
		s := newFakeSession()
		n := NewChannelNotifier(s, "log")
		require.NoError(t, n.Notify(t.Context(), dispatch.Notice{Title: "T", Description: "D", Color: 1}))
		require.Len(t, s.messages["log"], 1)
		embed := s.messages["log"][0].Embeds[0]
		assert.Equal(t, "T", embed.Title)
		assert.Equal(t, "D", embed.Description)
		assert.NotEmpty(t, embed.Timestamp)
	})
}

func TestRegisterCommands(t *testing.T) {
	t.Run("Should register every definition", func(t *testing.T) {
		s := newFakeSession()
		require.NoError(t, RegisterCommands(t.Context(), s, "app", "g"))
		names := make([]string, 0, len(s.commands))
		for _, c := range s.commands {
			names = append(names, c.Name)
		}
		assert.Contains(t, names, dispatch.CmdDeleteKey)
		assert.Contains(t, names, dispatch.CmdReconcile)
		assert.Len(t, names, 12)
	})
	t.Run("Should keep the deletekey option optional", func(t *testing.T) {
		for _, c := range Definitions() {
			if c.Name == dispatch.CmdDeleteKey {
				require.Len(t, c.Options, 1)
				assert.False(t, c.Options[0].Required)
			}
		}
	})
}
