// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/cdpdriver"
	"github.com/xkilldash9x/uiharness/internal/browser/pwdriver"
	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/observability"
)

// app carries the state shared by the commands of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger

	// newDriver picks the automation client; replaced in tests.
	newDriver func(cfg *config.Config, logger *zap.Logger) (browser.Driver, error)
}

func newApp() *app {
	return &app{v: viper.New(), logger: zap.NewNop(), newDriver: driverFor}
}

// NewRootCommand returns a fresh command tree with its own configuration.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp())
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "uiharness",
		Short: "uiharness runs browser scenarios with resilient, synchronized interactions.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any subcommand, setting up config and logging.
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./uiharness.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newRunCommand(a), newInstallCommand(a), newVersionCommand())
	return root
}

// Execute runs the root command under ctx and flushes the logger.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// load reads the config file and environment, validates the result and
// initializes the global logger from it.
func (a *app) load() error {
	config.SetDefaults(a.v)
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("uiharness")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("UIHARNESS")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		observability.InitializeLogger(config.NewDefaultConfig().Logger)
		return err
	}
	observability.InitializeLogger(cfg.Logger)

	a.cfg = cfg
	a.logger = observability.GetLogger()
	a.logger.Debug("Configuration loaded.",
		zap.String("file", a.v.ConfigFileUsed()),
		zap.String("browser", cfg.Variant().String()),
		zap.Bool("headless", cfg.HeadlessMode()),
		zap.String("driver", cfg.Driver.Name))
	return nil
}

// driverFor builds the configured automation client.
func driverFor(cfg *config.Config, logger *zap.Logger) (browser.Driver, error) {
	switch cfg.Driver.Name {
	case pwdriver.Name:
		return pwdriver.New(pwdriver.Options{
			Install:        cfg.Driver.Install,
			InstallTimeout: cfg.Driver.InstallTimeout,
			Browsers:       []browser.Variant{cfg.Variant()},
			Logger:         logger,
		}), nil
	case cdpdriver.Name:
		return cdpdriver.New(logger), nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver.Name)
}
