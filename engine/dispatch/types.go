package dispatch

import (
	"context"
	"time"

	"github.com/aethra/keybot/engine/key"
)

// Command names.
const (
	CmdGenerate     = "generate"
	CmdScriptPanel  = "script_panel"
	CmdUserInfo     = "userinfo"
	CmdRevokeKey    = "revokekey"
	CmdGetScript    = "get_script"
	CmdAddKey       = "addkey"
	CmdRedeem       = "redeem"
	CmdRedeemPrompt = "redeem_prompt"
	CmdKeys         = "keys"
	CmdUsedKeys     = "usedkeys"
	CmdDeleteKey    = "deletekey"
	CmdUpdateKey    = "updatekey"
	CmdResetCheck   = "reset_check"
	CmdReset        = "reset"
	CmdReconcile    = "reconcile"
)

// Argument names carried in Request.Args.
const (
	ArgKey        = "key"
	ArgOwner      = "owner"
	ArgUser       = "user"
	ArgUserTag    = "user_tag"
	ArgUserAvatar = "user_avatar"
	ArgLabel      = "label"
)

// Component identifiers shared with the chat adapter.
const (
	ButtonGetScript    = "get_script"
	ButtonRedeemKey    = "redeem_key_modal"
	ButtonResetKey     = "reset_key_modal"
	ModalRedeemKey     = "submit_redeem_key"
	ModalUpdateOwner   = "update_roblox_modal"
	InputRedeemKey     = "redeem_key"
	InputOwnerName     = "roblox_name"
	SelectDeleteKey    = "delete_key_select"
	maxSelectOptions   = 25
	maxSelectLabelSize = 100
)

// Source tells how a request reached the dispatcher.
type Source int

const (
	SourceCommand Source = iota
	SourceButton
	SourceModal
	SourceSelect
)

type Caller struct {
	ID  string
	Tag string
}

type Request struct {
	Command string
	Source  Source
	Caller  Caller
	Args    map[string]string
	// Now overrides the dispatcher clock when set.
	Now time.Time
}

func (r *Request) Arg(name string) string {
	if r.Args == nil {
		return ""
	}
	return r.Args[name]
}

// Response is what the chat adapter renders back to the caller. All replies
// are private to the caller; Panel is posted publicly to the channel.
type Response struct {
	Content string
	Embed   *Embed
	Panel   *Panel
	Modal   *Modal
	Select  *Select
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Footer      string
	Thumbnail   string
	Timestamp   bool
}

type ButtonStyle int

const (
	ButtonSecondary ButtonStyle = iota
	ButtonSuccess
	ButtonDanger
)

type Button struct {
	CustomID string
	Label    string
	Emoji    string
	Style    ButtonStyle
}

type Panel struct {
	Embed   Embed
	Buttons []Button
}

type TextInput struct {
	CustomID string
	Label    string
}

type Modal struct {
	CustomID string
	Title    string
	Input    TextInput
}

type SelectOption struct {
	Label string
	Value string
}

type Select struct {
	CustomID    string
	Placeholder string
	Options     []SelectOption
}

// KeyService is the key lifecycle surface the dispatcher drives.
type KeyService interface {
	IsAdmin(callerID string) bool
	AddKey(ctx context.Context, k, label string) error
	DeleteKey(ctx context.Context, k string) error
	UpdateKeyOwner(ctx context.Context, k, label string) error
	Redeem(ctx context.Context, requesterID, k, actingAs string) (key.Outcome, error)
	Revoke(ctx context.Context, requesterID string) (key.Outcome, error)
	ResetOwnerLabel(ctx context.Context, requesterID, label string, now time.Time) (key.Outcome, error)
	CooldownRemaining(ctx context.Context, requesterID string, now time.Time) (time.Duration, error)
	ListAvailable(ctx context.Context) ([]string, error)
	ListRedeemed(ctx context.Context) ([]key.RedemptionRecord, error)
	Redemption(ctx context.Context, requesterID string) (string, bool, error)
	OwnerLabel(ctx context.Context, k string) (string, bool, error)
	Reconcile(ctx context.Context) (key.Drift, error)
	SyncRegistry(ctx context.Context, label string) (key.Drift, error)
}

var _ KeyService = (*key.Service)(nil)

// CommandObserver counts handled commands.
type CommandObserver interface {
	CommandHandled(command, outcome string)
}
