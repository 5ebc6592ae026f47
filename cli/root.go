package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aethra/keybot/pkg/config"
	"github.com/aethra/keybot/pkg/logger"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "keybot",
		Short:         "Discord key redemption bot",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "keybot.yaml", "Path to a YAML configuration file")
	flags.String("env-file", ".env", "Path to a .env file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Emit JSON logs")
	flags.Bool("log-source", false, "Include source locations in logs")
	flags.String("data-dir", "", "Directory holding the ledger and redemption files")
	flags.String("registry-driver", "", "Registry backend (github or file)")
	flags.String("registry-file", "", "Registry file for the file driver")

	root.AddCommand(
		ServeCmd(),
		GenerateCmd(),
		KeysCmd(),
		ReconcileCmd(),
		VersionCmd(),
	)

	return root
}

// SetupGlobalConfig loads configuration and the logger and attaches both to
// the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	envFile, err := resolveEnvFile(cmd)
	if err != nil {
		return err
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cliFlags := make(map[string]any)
	extractCLIFlags(cmd, cliFlags)

	ctx := cmd.Context()
	cfg, err := config.Load(
		ctx,
		config.NewYAMLProvider(configFile),
		config.NewDotenvProvider(envFile),
		config.NewCLIProvider(cliFlags),
	)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	_, _, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, logSource)
	log := logger.GetDefault()
	for _, w := range config.Warnings(cfg) {
		log.Warn("Missing configuration value", "setting", w.String())
	}

	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithConfig(ctx, cfg)
	cmd.SetContext(ctx)
	return nil
}
