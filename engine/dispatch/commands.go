package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/pkg/logger"
)

const missingOption = "❌ Missing required option."

func (d *Dispatcher) generate(_ context.Context, _ *Request) (Response, error) {
	k, err := key.Generate(d.opts.KeyPrefix, d.opts.KeyLength)
	if err != nil {
		return Response{Content: "❌ Failed to generate a key."}, err
	}
	return Response{Content: k}, nil
}

func (d *Dispatcher) scriptPanel(ctx context.Context, req *Request) (Response, error) {
	if !d.isAdmin(req) {
		return reject("❌ Only the owner can open this panel.")
	}
	d.notify(ctx, "📢 Script Panel Opened", fmt.Sprintf("Owner %s opened the Script Panel.", req.Caller.Tag), ColorDefault)
	return Response{
		Content: "✅ Script Panel opened successfully!",
		Panel: &Panel{
			Embed: Embed{
				Title: "💜 Aethra | Script Access Panel",
				Description: "Welcome! Use the buttons below to manage your script access.\n\n" +
					"🔑 Redeem Key → Activate your purchased key.\n" +
					"📜 Get Script → Retrieve your personal script after key activation.\n" +
					"♻️ Reset Key →/2H Cooldown.\n\n" +
					"> If you need help, please contact staff.",
				Color:     ColorDefault,
				Footer:    "Aethra Script System © 2025",
				Timestamp: true,
			},
			Buttons: []Button{
				{CustomID: ButtonGetScript, Label: "Get Script", Emoji: "📜", Style: ButtonSecondary},
				{CustomID: ButtonRedeemKey, Label: "Redeem Key", Emoji: "🔑", Style: ButtonSuccess},
				{CustomID: ButtonResetKey, Label: "Reset Key", Emoji: "♻️", Style: ButtonDanger},
			},
		},
	}, nil
}

func (d *Dispatcher) userInfo(ctx context.Context, req *Request) (Response, error) {
	target := req.Arg(ArgUser)
	if target == "" {
		return reject(missingOption)
	}
	k, ok, err := d.opts.Keys.Redemption(ctx, target)
	if err != nil {
		return failure(ctx, err, "❌ Failed to load user info.")
	}
	keyText, owner, color := "None", "None", ColorDanger
	if ok {
		keyText, color = k, ColorSuccess
		label, found, err := d.opts.Keys.OwnerLabel(ctx, k)
		switch {
		case err != nil:
			logger.FromContext(ctx).Warn("Failed to load registry label for user info", "error", err)
		case found:
			owner = label
		default:
			owner = "Not assigned"
		}
	}
	return Response{Embed: &Embed{
		Title:       "🔑 Key Info — " + req.Arg(ArgUserTag),
		Description: fmt.Sprintf("**Key:** `%s`\n**Roblox User:** `%s`", keyText, owner),
		Color:       color,
		Thumbnail:   req.Arg(ArgUserAvatar),
		Footer:      "Aethra Key Panel",
		Timestamp:   true,
	}}, nil
}

func (d *Dispatcher) revokeKey(ctx context.Context, req *Request) (Response, error) {
	if d.opts.RevokeRequiresAdmin && !d.isAdmin(req) {
		return reject("❌ Only the owner can revoke keys.")
	}
	target := req.Arg(ArgUser)
	if target == "" {
		return reject(missingOption)
	}
	out, err := d.opts.Keys.Revoke(ctx, target)
	switch {
	case errors.Is(err, key.ErrNoActiveKey):
		return Response{Content: "❌ This user has no active key."}, err
	case err != nil:
		return failure(ctx, err, "❌ Failed to revoke key.")
	}
	tag := req.Arg(ArgUserTag)
	role := "Removed"
	for _, f := range out.Failures {
		if f.Effect == key.EffectRevokeBenefit {
			role = "Not removed"
		}
	}
	d.notify(ctx, "🗑️ Key Revoked",
		fmt.Sprintf("%s revoked %s's key (`%s`).", req.Caller.Tag, tag, out.Key), ColorDanger)
	return Response{Embed: &Embed{
		Title: "🔑 Key Revoked Successfully",
		Description: fmt.Sprintf("**%s**'s key has been revoked.\n🗑️ **Deleted Key:** `%s`\n🎭 **Buyer Role:** %s",
			tag, out.Key, role) + d.effectWarnings(ctx, req, out),
		Color:     ColorDanger,
		Timestamp: true,
	}}, nil
}

func (d *Dispatcher) getScript(ctx context.Context, req *Request) (Response, error) {
	k, ok, err := d.opts.Keys.Redemption(ctx, req.Caller.ID)
	if err != nil {
		return failure(ctx, err, "❌ Failed to load your key.")
	}
	if !ok {
		return reject("❌ You need to redeem a key first!")
	}
	script, err := d.opts.Script.Render(ScriptData{Key: k, UserID: req.Caller.ID})
	if err != nil {
		return failure(ctx, err, "❌ Failed to build your script.")
	}
	return Response{Content: "💠 Your personal script:\n```lua\n" + script + "\n```"}, nil
}

func (d *Dispatcher) addKey(ctx context.Context, req *Request) (Response, error) {
	if !d.isAdmin(req) {
		return reject("❌ Only the owner can add keys.")
	}
	k, owner := strings.TrimSpace(req.Arg(ArgKey)), strings.TrimSpace(req.Arg(ArgOwner))
	err := d.opts.Keys.AddKey(ctx, k, owner)
	var partial *key.PartialWriteError
	switch {
	case errors.Is(err, key.ErrInvalidArgument):
		return Response{Content: missingOption}, err
	case errors.Is(err, key.ErrAlreadyExists):
		return Response{Content: "⚠️ This key already exists."}, err
	case errors.As(err, &partial):
		logger.FromContext(ctx).Error("Key added with partial write", "error", err)
		return Response{Content: fmt.Sprintf(
			"⚠️ Key `%s` was saved locally but the registry update failed. Run /reconcile to repair.", k)}, err
	case err != nil:
		return failure(ctx, err, "❌ Failed to add key.")
	}
	d.notify(ctx, "➕ Key Added", fmt.Sprintf("%s added key %s for Roblox user %s", req.Caller.Tag, k, owner), ColorDefault)
	return Response{Content: fmt.Sprintf("✅ Key `%s` added successfully for Roblox user `%s`!", k, owner)}, nil
}

func (d *Dispatcher) redeem(ctx context.Context, req *Request) (Response, error) {
	k := strings.TrimSpace(req.Arg(ArgKey))
	target, targetTag := req.Caller.ID, req.Caller.Tag
	if u := req.Arg(ArgUser); u != "" {
		target, targetTag = u, req.Arg(ArgUserTag)
	}
	fromModal := req.Source == SourceModal
	out, err := d.opts.Keys.Redeem(ctx, target, k, req.Caller.ID)
	switch {
	case errors.Is(err, key.ErrInvalidArgument):
		return Response{Content: missingOption}, err
	case errors.Is(err, key.ErrUnauthorized):
		return Response{Content: "❌ You can only redeem keys for yourself."}, err
	case errors.Is(err, key.ErrInvalidKey):
		return Response{Content: "❌ Invalid key."}, err
	case errors.Is(err, key.ErrAlreadyUsed):
		return Response{Content: "❌ Key already used."}, err
	case errors.Is(err, key.ErrAlreadyRedeemed):
		if fromModal {
			return Response{Content: "❌ Already redeemed."}, err
		}
		return Response{Content: "❌ This user has already redeemed a key."}, err
	case err != nil:
		return failure(ctx, err, "❌ Failed to redeem key.")
	}
	warnings := d.effectWarnings(ctx, req, out)
	if fromModal {
		d.notify(ctx, "🔑 Key Redeemed (Modal)", fmt.Sprintf("%s redeemed key `%s`.", req.Caller.Tag, k), ColorSuccess)
		return Response{Content: fmt.Sprintf("✅ Key `%s` redeemed successfully!", k) + warnings}, nil
	}
	d.notify(ctx, "🔑 Key Redeemed",
		fmt.Sprintf("%s redeemed key `%s` for %s.", req.Caller.Tag, k, targetTag), ColorSuccess)
	return Response{Content: fmt.Sprintf("✅ Key `%s` redeemed successfully for %s!", k, targetTag) + warnings}, nil
}

func (d *Dispatcher) redeemPrompt(_ context.Context, _ *Request) (Response, error) {
	return Response{Modal: &Modal{
		CustomID: ModalRedeemKey,
		Title:    "Redeem Script Key",
		Input:    TextInput{CustomID: InputRedeemKey, Label: "Enter Your Key"},
	}}, nil
}

func (d *Dispatcher) listKeys(ctx context.Context, _ *Request) (Response, error) {
	available, err := d.opts.Keys.ListAvailable(ctx)
	if err != nil {
		return failure(ctx, err, "❌ Failed to load keys.")
	}
	if len(available) == 0 {
		return Response{Content: "⚠️ No available keys."}, nil
	}
	return Response{Content: "💠 Available Keys:\n```\n" + strings.Join(available, "\n") + "\n```"}, nil
}

func (d *Dispatcher) usedKeys(ctx context.Context, req *Request) (Response, error) {
	if !d.isAdmin(req) {
		return reject("❌ Only the owner can use this.")
	}
	records, err := d.opts.Keys.ListRedeemed(ctx)
	if err != nil {
		return failure(ctx, err, "❌ Failed to load redeemed keys.")
	}
	if len(records) == 0 {
		return Response{Content: "⚠️ No redeemed keys yet."}, nil
	}
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, fmt.Sprintf("👤 <@%s> — `%s`", r.RequesterID, r.Key))
	}
	return Response{Content: "🔒 **Redeemed Keys:**\n" + strings.Join(lines, "\n")}, nil
}

func (d *Dispatcher) deleteKey(ctx context.Context, req *Request) (Response, error) {
	if !d.isAdmin(req) {
		return reject("❌ Only the owner can delete keys.")
	}
	k := strings.TrimSpace(req.Arg(ArgKey))
	if k == "" {
		return d.deleteKeyMenu(ctx)
	}
	err := d.opts.Keys.DeleteKey(ctx, k)
	var partial *key.PartialWriteError
	switch {
	case errors.As(err, &partial):
		logger.FromContext(ctx).Error("Key deleted with partial write", "error", err)
		return Response{Content: fmt.Sprintf(
			"⚠️ Key `%s` was removed locally but the registry update failed. Run /reconcile to repair.", k)}, err
	case err != nil:
		return failure(ctx, err, "❌ Failed to delete key.")
	}
	d.notify(ctx, "🗑️ Key Deleted", fmt.Sprintf("%s deleted key %s", req.Caller.Tag, k), ColorDefault)
	if req.Source == SourceSelect {
		return Response{Content: fmt.Sprintf("🗑️ Key **%s** deleted successfully.", k)}, nil
	}
	return Response{Content: fmt.Sprintf("🗑️ Key `%s` deleted successfully!", k)}, nil
}

func (d *Dispatcher) deleteKeyMenu(ctx context.Context) (Response, error) {
	available, err := d.opts.Keys.ListAvailable(ctx)
	if err != nil {
		return failure(ctx, err, "❌ Failed to load keys.")
	}
	if len(available) == 0 {
		return Response{Content: "⚠️ No unused keys available."}, nil
	}
	if len(available) > maxSelectOptions {
		available = available[:maxSelectOptions]
	}
	options := make([]SelectOption, 0, len(available))
	for _, k := range available {
		options = append(options, SelectOption{Label: truncateLabel(k, maxSelectLabelSize), Value: k})
	}
	return Response{
		Content: "🗑️ **Select a key to delete:**",
		Select:  &Select{CustomID: SelectDeleteKey, Placeholder: "Select a key to delete", Options: options},
	}, nil
}

// truncateLabel shortens s to at most limit runes, ending in "...".
func truncateLabel(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func (d *Dispatcher) updateKey(ctx context.Context, req *Request) (Response, error) {
	if !d.isAdmin(req) {
		return reject("❌ Only the owner can update keys.")
	}
	k, owner := strings.TrimSpace(req.Arg(ArgKey)), strings.TrimSpace(req.Arg(ArgOwner))
	err := d.opts.Keys.UpdateKeyOwner(ctx, k, owner)
	switch {
	case errors.Is(err, key.ErrInvalidArgument):
		return Response{Content: missingOption}, err
	case errors.Is(err, key.ErrNotFound):
		return Response{Content: "❌ No key found in Database"}, err
	case err != nil:
		return failure(ctx, err, "❌ Failed to update key.")
	}
	d.notify(ctx, "🔄 Key Updated",
		fmt.Sprintf("%s updated key %s Roblox username to %s.", req.Caller.Tag, k, owner), ColorInfo)
	return Response{Content: fmt.Sprintf("✅ Key `%s` updated successfully to Roblox user `%s`.", k, owner)}, nil
}

func (d *Dispatcher) resetCheck(ctx context.Context, req *Request) (Response, error) {
	_, ok, err := d.opts.Keys.Redemption(ctx, req.Caller.ID)
	if err != nil {
		return failure(ctx, err, "❌ Failed to load your key.")
	}
	if !ok {
		return Response{Content: "❌ You don't have a key to update."}, key.ErrNoActiveKey
	}
	left, err := d.opts.Keys.CooldownRemaining(ctx, req.Caller.ID, req.Now)
	if err != nil {
		return failure(ctx, err, "❌ Failed to check your cooldown.")
	}
	if left > 0 {
		minutes := int(math.Ceil(left.Minutes()))
		return Response{Content: fmt.Sprintf("❌ You are on cooldown. Try again in %d minutes.", minutes)},
			&key.CooldownError{Until: req.Now.Add(left), Remaining: left}
	}
	return Response{Modal: &Modal{
		CustomID: ModalUpdateOwner,
		Title:    "Update Your Roblox Username",
		Input:    TextInput{CustomID: InputOwnerName, Label: "Enter your Roblox username"},
	}}, nil
}

func (d *Dispatcher) reset(ctx context.Context, req *Request) (Response, error) {
	owner := strings.TrimSpace(req.Arg(ArgOwner))
	out, err := d.opts.Keys.ResetOwnerLabel(ctx, req.Caller.ID, owner, req.Now)
	switch {
	case errors.Is(err, key.ErrInvalidArgument):
		return Response{Content: missingOption}, err
	case errors.Is(err, key.ErrNoActiveKey):
		return Response{Content: "❌ You don't have a key to update."}, err
	case errors.Is(err, key.ErrOnCooldown):
		return Response{Content: "❌ You are on cooldown. Try again later."}, err
	case err != nil:
		return failure(ctx, err, "❌ Failed to update Roblox username.")
	}
	d.notify(ctx, "♻️ Roblox Name Updated",
		fmt.Sprintf("%s updated key %s with Roblox username %s", req.Caller.Tag, out.Key, owner), ColorWarning)
	return Response{Content: fmt.Sprintf(
		"✅ Your key `%s` has been updated with Roblox username `%s`. You can update again in 2 hours.",
		out.Key, owner) + d.effectWarnings(ctx, req, out)}, nil
}

func (d *Dispatcher) reconcile(ctx context.Context, req *Request) (Response, error) {
	if !d.isAdmin(req) {
		return reject("❌ Only the owner can reconcile keys.")
	}
	label := strings.TrimSpace(req.Arg(ArgLabel))
	var (
		drift key.Drift
		err   error
	)
	if label != "" {
		drift, err = d.opts.Keys.SyncRegistry(ctx, label)
	} else {
		drift, err = d.opts.Keys.Reconcile(ctx)
	}
	if err != nil {
		return failure(ctx, err, "❌ Failed to reconcile keys.")
	}
	if drift.Empty() {
		return Response{Content: "✅ Ledger, registry and redemptions agree."}, nil
	}
	if label != "" {
		d.notify(ctx, "🔧 Registry Reconciled", fmt.Sprintf("%s synchronized the registry: +%d -%d",
			req.Caller.Tag, len(drift.LedgerOnly), len(drift.RegistryOnly)), ColorInfo)
	}
	return Response{Content: RenderDrift(drift, label != "")}, nil
}

// RenderDrift formats a drift report. applied marks registry changes as done.
func RenderDrift(drift key.Drift, applied bool) string {
	var b strings.Builder
	verb := "Missing from registry"
	extra := "Only in registry"
	if applied {
		verb, extra = "Added to registry", "Removed from registry"
	}
	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "**%s (%d):**\n```\n%s\n```\n", title, len(items), strings.Join(items, "\n"))
	}
	writeList(verb, drift.LedgerOnly)
	writeList(extra, drift.RegistryOnly)
	if len(drift.Orphaned) > 0 {
		lines := make([]string, 0, len(drift.Orphaned))
		for _, r := range drift.Orphaned {
			lines = append(lines, fmt.Sprintf("%s -> %s", r.RequesterID, r.Key))
		}
		writeList("Redemptions of deleted keys", lines)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
