// Package commands provides the CLI commands for agentd.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentd-ai/agentd/internal/config"
	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/provider"
	"github.com/agentd-ai/agentd/internal/session"
	"github.com/agentd-ai/agentd/internal/storage"
	"github.com/agentd-ai/agentd/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	flagLogLevel  string
	flagDirectory string
)

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "agentd - LLM session runtime",
	Long: `agentd manages LLM conversation sessions: persistent identity and
history, token and cost accounting, and history compaction.

Run 'agentd run' for an interactive conversation, or 'agentd sessions'
to inspect stored sessions.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVarP(&flagDirectory, "directory", "C", "", "Working directory")

	rootCmd.SetVersionTemplate(fmt.Sprintf("agentd %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// app bundles everything a command needs to talk to the session runtime.
type app struct {
	config  *types.Config
	store   *storage.Manager
	bus     *event.Bus
	manager *session.Manager
}

// newApp loads configuration and wires the runtime. The caller must Close it.
func newApp() (*app, error) {
	workDir := flagDirectory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if cfg.Storage.Backend == "json" && cfg.Storage.Path == "" {
		cfg.Storage.Path = paths.StoragePath()
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: true,
	})

	store, warning, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		fmt.Fprintln(os.Stderr, "warning:", warning)
	}

	registry := provider.NewRegistry()
	provider.RegisterLoopback(registry)

	defaultLLM := cfg.LLM
	if defaultLLM.ProviderID == "" {
		defaultLLM.ProviderID = provider.LoopbackID
	}

	bus := event.NewBus()
	manager := session.NewManager(store, bus, registry.FactoryFunc(), session.Config{
		MaxSessions: cfg.Session.MaxSessions,
		TTL:         time.Duration(cfg.Session.TTL),
		CacheTTL:    time.Duration(cfg.Session.CacheTTL),
		DefaultLLM:  defaultLLM,
	}, logger)

	return &app{config: cfg, store: store, bus: bus, manager: manager}, nil
}

// Close shuts the runtime down in dependency order.
func (a *app) Close() {
	a.manager.Close()
	a.bus.Close()
}
