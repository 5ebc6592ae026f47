package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/pkg/logger"
)

var (
	errRejected  = errors.New("rejected")
	errThrottled = errors.New("throttled")
)

type handlerFunc func(ctx context.Context, req *Request) (Response, error)

type Options struct {
	Keys                KeyService
	Notifier            Notifier
	Throttle            *Throttle
	Script              *ScriptRenderer
	Observer            CommandObserver
	KeyPrefix           string
	KeyLength           int
	RevokeRequiresAdmin bool
	Clock               func() time.Time
}

// Dispatcher resolves permissions for a request, invokes the key service
// and renders the reply.
type Dispatcher struct {
	opts     Options
	handlers map[string]handlerFunc
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Keys == nil {
		return nil, errors.New("dispatcher requires a key service")
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.KeyLength <= 0 {
		opts.KeyLength = key.DefaultLength
	}
	if opts.Script == nil {
		return nil, errors.New("dispatcher requires a script renderer")
	}
	d := &Dispatcher{opts: opts}
	d.handlers = map[string]handlerFunc{
		CmdGenerate:     d.generate,
		CmdScriptPanel:  d.scriptPanel,
		CmdUserInfo:     d.userInfo,
		CmdRevokeKey:    d.revokeKey,
		CmdGetScript:    d.getScript,
		CmdAddKey:       d.addKey,
		CmdRedeem:       d.redeem,
		CmdRedeemPrompt: d.redeemPrompt,
		CmdKeys:         d.listKeys,
		CmdUsedKeys:     d.usedKeys,
		CmdDeleteKey:    d.deleteKey,
		CmdUpdateKey:    d.updateKey,
		CmdResetCheck:   d.resetCheck,
		CmdReset:        d.reset,
		CmdReconcile:    d.reconcile,
	}
	return d, nil
}

// Commands lists every command the dispatcher understands.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	log := logger.FromContext(ctx).With(
		"request_id", ksuid.New().String(),
		"command", req.Command,
		"caller", req.Caller.ID,
	)
	ctx = logger.ContextWithLogger(ctx, log)
	if req.Now.IsZero() {
		req.Now = d.opts.Clock()
	}
	handler, ok := d.handlers[req.Command]
	if !ok {
		d.observe(req.Command, errRejected)
		return Response{Content: "❌ Unknown command."}
	}
	allowed, wait, err := d.opts.Throttle.Allow(ctx, req.Caller.ID)
	if err != nil {
		log.Warn("Command throttle unavailable, allowing request", "error", err)
		allowed = true
	}
	if !allowed {
		d.observe(req.Command, errThrottled)
		seconds := int(math.Ceil(wait.Seconds()))
		return Response{Content: fmt.Sprintf("⏳ You're doing that too fast. Try again in %d seconds.", seconds)}
	}
	resp, err := handler(ctx, &req)
	d.observe(req.Command, err)
	return resp
}

func (d *Dispatcher) observe(command string, err error) {
	if d.opts.Observer == nil {
		return
	}
	var outcome string
	switch {
	case err == nil:
		outcome = "ok"
	case errors.Is(err, errRejected):
		outcome = "rejected"
	case errors.Is(err, errThrottled):
		outcome = "throttled"
	default:
		outcome = key.KindOf(err).String()
	}
	d.opts.Observer.CommandHandled(command, outcome)
}

func (d *Dispatcher) isAdmin(req *Request) bool {
	return d.opts.Keys.IsAdmin(req.Caller.ID)
}

// notify delivers an audit notice without affecting the reply.
func (d *Dispatcher) notify(ctx context.Context, title, description string, color int) {
	err := d.opts.Notifier.Notify(ctx, Notice{Title: title, Description: description, Color: color})
	if err != nil {
		logger.FromContext(ctx).Warn("Audit notification failed", "title", title, "error", err)
		if d.opts.Observer != nil {
			d.opts.Observer.CommandHandled("audit", "failed")
		}
	}
}

func reject(msg string) (Response, error) {
	return Response{Content: msg}, errRejected
}

// failure logs err in full and returns a short message.
func failure(ctx context.Context, err error, msg string) (Response, error) {
	logger.FromContext(ctx).Error("Command failed", "error", err, "kind", key.KindOf(err).String())
	return Response{Content: msg}, err
}

// effectWarnings renders failed secondary effects for administrators only.
func (d *Dispatcher) effectWarnings(ctx context.Context, req *Request, out key.Outcome) string {
	if !out.Degraded() {
		return ""
	}
	for _, f := range out.Failures {
		logger.FromContext(ctx).Warn("Secondary effect failed", "effect", f.Effect, "error", f.Err)
	}
	if !d.isAdmin(req) {
		return ""
	}
	text := ""
	for _, f := range out.Failures {
		text += "\n⚠️ " + effectLabel(f.Effect) + " failed: " + f.Err.Error()
	}
	return text
}

func effectLabel(effect string) string {
	switch effect {
	case key.EffectGrantBenefit:
		return "Buyer role grant"
	case key.EffectRevokeBenefit:
		return "Buyer role removal"
	case key.EffectCooldown:
		return "Cooldown recording"
	default:
		return effect
	}
}
