package cli

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aethra/keybot/engine/discord"
	"github.com/aethra/keybot/engine/dispatch"
	"github.com/aethra/keybot/engine/infra/monitoring"
	"github.com/aethra/keybot/engine/infra/server"
	"github.com/aethra/keybot/engine/jobs"
	"github.com/aethra/keybot/engine/key/cooldown"
	"github.com/aethra/keybot/pkg/config"
	"github.com/aethra/keybot/pkg/logger"
	"github.com/aethra/keybot/pkg/version"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot and the uptime server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().String("host", "", "HTTP server host")
	cmd.Flags().Int("port", 0, "HTTP server port")
	cmd.Flags().Bool("no-discord", false, "Run without connecting to Discord")
	return cmd
}

func runServe(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	log := logger.FromContext(ctx)
	info := version.Get()
	log.Info("Starting keybot", "version", info.String())

	mon := monitoring.NewMonitoringServiceWithFallback(ctx, monitoringConfig(cfg))
	defer func() {
		if err := mon.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to shut down monitoring", "error", err)
		}
	}()

	c, err := newContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	notifier := dispatch.Notifier(dispatch.LogNotifier{})
	var bot *discord.Bot
	gw, err := restSession(cfg)
	if err != nil {
		return err
	}
	if !cfg.Discord.Enabled || gw == nil {
		log.Warn("Discord gateway disabled; only the HTTP server will run")
		gw = nil
	} else if cfg.Discord.AuditChannelID != "" {
		notifier = dispatch.MultiNotifier{notifier, discord.NewChannelNotifier(gw, cfg.Discord.AuditChannelID)}
	}

	svc, err := c.service(roleGranter(gw, cfg), mon.Keys())
	if err != nil {
		return err
	}
	script, err := dispatch.NewScriptRenderer(cfg.Script.Template)
	if err != nil {
		return err
	}
	dispatcher, err := dispatch.New(dispatch.Options{
		Keys:                svc,
		Notifier:            notifier,
		Throttle:            dispatch.NewThrottle(nil, cfg.Commands.RateLimit, cfg.Commands.RatePeriod),
		Script:              script,
		Observer:            mon.Keys(),
		KeyPrefix:           cfg.Keys.Prefix,
		KeyLength:           cfg.Keys.Length,
		RevokeRequiresAdmin: cfg.Commands.RevokeRequiresAdmin,
	})
	if err != nil {
		return err
	}
	if gw != nil {
		bot, err = discord.NewBot(gw, dispatcher, discord.Options{
			ApplicationID: cfg.Discord.ApplicationID,
			GuildID:       cfg.Discord.GuildID,
		})
		if err != nil {
			return err
		}
	}

	scheduled := []jobs.Job{jobs.NewDriftCheck(svc, notifier).Job(cfg.Jobs.DriftCheck)}
	if mem, ok := c.cooldowns.(*cooldown.MemoryTracker); ok {
		scheduled = append(scheduled, jobs.CooldownPrune(cfg.Jobs.CooldownPrune, mem, nil))
	}
	scheduler, err := jobs.New(scheduled...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.Enabled {
		srv := server.New(gctx, server.Options{
			Host:       cfg.Server.Host,
			Port:       cfg.Server.Port,
			Version:    info.Version,
			Monitoring: mon,
			Checks: map[string]server.ReadinessCheck{
				"ledger": func(ctx context.Context) error {
					_, err := c.ledger.Load(ctx)
					return err
				},
				"redemptions": func(ctx context.Context) error {
					_, err := c.redemptions.Load(ctx)
					return err
				},
			},
		})
		g.Go(func() error { return srv.Run(gctx) })
	}
	if bot != nil {
		g.Go(func() error { return discord.Run(gctx, gw, bot) })
	}
	g.Go(func() error { return scheduler.Run(gctx) })
	err = g.Wait()
	log.Info("keybot stopped")
	return err
}

func monitoringConfig(cfg *config.Config) *monitoring.Config {
	return &monitoring.Config{
		Enabled: cfg.Monitoring.Enabled,
		Path:    cfg.Monitoring.Path,
	}
}
