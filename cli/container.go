package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/aethra/keybot/engine/discord"
	"github.com/aethra/keybot/engine/infra/github"
	"github.com/aethra/keybot/engine/infra/localstore"
	"github.com/aethra/keybot/engine/infra/regcache"
	"github.com/aethra/keybot/engine/infra/registry"
	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/engine/key/cooldown"
	"github.com/aethra/keybot/pkg/config"
	"github.com/aethra/keybot/pkg/logger"
)

// container holds the stores shared by every command.
type container struct {
	cfg *config.Config

	fs          afero.Fs
	ledger      *localstore.Ledger
	redemptions *localstore.Redemptions
	registry    key.Registry
	cooldowns   cooldown.Tracker
	locker      *localstore.FileLock
	redis       *redis.Client
}

// newContainer builds the stores described by cfg.
func newContainer(ctx context.Context, cfg *config.Config) (*container, error) {
	fs := afero.NewOsFs()
	dataDir := cfg.Store.DataDir
	if err := fs.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	c := &container{
		cfg:         cfg,
		fs:          fs,
		ledger:      localstore.NewLedger(fs, filepath.Join(dataDir, cfg.Store.LedgerFile)),
		redemptions: localstore.NewRedemptions(fs, filepath.Join(dataDir, cfg.Store.RedemptionsFile)),
		locker:      localstore.NewFileLock(filepath.Join(dataDir, cfg.Store.LockFile)),
	}

	doc, err := newRegistryDocument(ctx, fs, cfg)
	if err != nil {
		return nil, err
	}
	var reg key.Registry = registry.New(doc, registry.Options{
		MaxRetries: cfg.Registry.MaxRetries,
		Backoff:    cfg.Registry.RetryBackoff,
	})
	if cfg.Registry.CacheTTL > 0 {
		reg = regcache.New(reg, cfg.Registry.CacheTTL)
	}
	c.registry = reg

	switch cfg.Cooldown.Driver {
	case "redis":
		client, err := cooldown.DialRedis(ctx, cfg.Cooldown.RedisURL.Value())
		if err != nil {
			return nil, err
		}
		c.redis = client
		c.cooldowns = cooldown.NewRedisTracker(client, cfg.Cooldown.Prefix, cooldown.DefaultRetention)
	default:
		c.cooldowns = cooldown.NewMemoryTracker()
	}
	logger.FromContext(ctx).Debug("Stores ready",
		"data_dir", dataDir, "registry", doc.Name(), "cooldown", cfg.Cooldown.Driver)
	return c, nil
}

// newRegistryDocument builds the configured registry backend. Incomplete
// GitHub settings are not fatal: registry operations fail individually until
// the settings are fixed.
func newRegistryDocument(ctx context.Context, fs afero.Fs, cfg *config.Config) (registry.Document, error) {
	rc := cfg.Registry
	switch rc.Driver {
	case "file":
		path := rc.FilePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Store.DataDir, path)
		}
		return localstore.NewFileRegistry(fs, path), nil
	case "github":
		doc, err := github.NewDocument(&github.Config{
			Token:         rc.Token.Value(),
			Owner:         rc.Owner,
			Repo:          rc.Repo,
			Path:          rc.Path,
			Branch:        rc.Branch,
			BaseURL:       rc.BaseURL,
			WriteInterval: rc.WriteInterval,
			Timeout:       rc.Timeout,
		})
		if err != nil {
			logger.FromContext(ctx).Warn("GitHub registry unavailable; registry operations will fail", "error", err)
			return registry.Unavailable("github", err), nil
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unknown registry driver %q", rc.Driver)
	}
}

// service builds the key service. benefits and observer may be nil.
func (c *container) service(benefits key.BenefitGranter, observer key.Observer) (*key.Service, error) {
	deps := key.Dependencies{
		Ledger:      c.ledger,
		Registry:    c.registry,
		Redemptions: c.redemptions,
		Cooldowns:   c.cooldowns,
		Benefits:    benefits,
		Locker:      c.locker,
	}
	if observer != nil {
		deps.Observer = observer
	}
	return key.NewService(deps, c.cfg.Discord.AdminID)
}

func (c *container) Close(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Close(); err != nil {
		logger.FromContext(ctx).Warn("Failed to close redis client", "error", err)
	}
}

// restSession returns a REST-only Discord session when a bot token is
// configured, so offline commands can grant and remove roles.
func restSession(cfg *config.Config) (*discordgo.Session, error) {
	token := cfg.Discord.Token.Value()
	if token == "" {
		return nil, nil
	}
	return discord.NewGateway(token)
}

// roleGranter returns nil when the buyer role cannot be managed.
func roleGranter(session *discordgo.Session, cfg *config.Config) key.BenefitGranter {
	if session == nil || cfg.Discord.GuildID == "" || cfg.Discord.BenefitRoleID == "" {
		return nil
	}
	return discord.NewRoleGranter(session, cfg.Discord.GuildID, cfg.Discord.BenefitRoleID)
}
