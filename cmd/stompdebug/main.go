package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/stompdebug/internal/app"
	"github.com/vovakirdan/stompdebug/internal/config"
	applog "github.com/vovakirdan/stompdebug/internal/log"
)

var rootCmd = &cobra.Command{
	Use:          "stompdebug",
	Short:        "Interactive STOMP console for the instant messenger server",
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runConsole,
}

var sendCmd = &cobra.Command{
	Use:   "send <to> <content...>",
	Short: "Connect, send one direct message and disconnect",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

var (
	flagConfig      string
	flagEndpoint    string
	flagUser        string
	flagFullName    string
	flagLogLevel    string
	flagHistory     string
	flagInspectAddr string
	flagLoopback    bool
	flagConnect     bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "path to config file (default ./stompdebug.yaml)")
	flags.StringVar(&flagEndpoint, "endpoint", "", "SockJS endpoint of the messenger server")
	flags.StringVar(&flagUser, "user", "", "user id to connect as")
	flags.StringVar(&flagFullName, "fullname", "", "full name announced with status updates")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&flagHistory, "history", "", "sqlite file to persist rendered messages")
	flags.StringVar(&flagInspectAddr, "inspect-addr", "", "listen address of the local control API")
	flags.BoolVar(&flagLoopback, "loopback", false, "use an in-process broker instead of the server")
	rootCmd.Flags().BoolVar(&flagConnect, "connect", false, "connect on startup with the configured user")

	rootCmd.AddCommand(sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	bootLogger := applog.New("info")
	cfg, path, err := config.Load(bootLogger, flagConfig)
	if err != nil {
		return nil, err
	}

	applyFlags(&cfg, cmd.Flags().Changed)
	bootLogger.Debug().Str("path", path).Msg("config loaded")
	return &cfg, nil
}

// applyFlags overrides cfg with flags given on the command line. Booleans
// are applied whenever set so --loopback=false beats the config file.
func applyFlags(cfg *config.Config, changed func(name string) bool) {
	cfg.UpdateFrom(config.Config{
		Endpoint:    flagEndpoint,
		UserID:      flagUser,
		FullName:    flagFullName,
		LogLevel:    flagLogLevel,
		HistoryPath: flagHistory,
		InspectAddr: flagInspectAddr,
	})
	if changed("loopback") {
		cfg.Loopback = flagLoopback
	}
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := applog.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().
		Str("endpoint", cfg.Endpoint).
		Bool("loopback", cfg.Loopback).
		Msg("stompdebug console ready, type help for commands")
	if err := application.Run(ctx, flagConnect); err != nil {
		logger.Error().Err(err).Msg("console exited with error")
		return err
	}
	logger.Info().Msg("console stopped")
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := applog.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	content := strings.Join(args[1:], " ")
	if err := application.SendOnce(ctx, args[0], content); err != nil {
		logger.Error().Err(err).Str("to", args[0]).Msg("send failed")
		return err
	}
	return nil
}
