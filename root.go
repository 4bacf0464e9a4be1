package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-backup/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// errIncomplete marks a command that ran to the end but left work undone.
// main exits 1 without printing it again.
var errIncomplete = errors.New("completed with errors")

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// transferHeaderTimeout bounds the wait for download response headers.
// Download bodies have no overall deadline because files can be large.
const transferHeaderTimeout = 2 * time.Minute

// metadataHTTPClient returns the client used for API calls, bounded by the
// configured data timeout.
func metadataHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Network.DataTimeoutDuration()}
}

// transferHTTPClient returns the client used for content downloads.
func transferHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.Network.DataTimeoutDuration(),
			}).DialContext,
			TLSHandshakeTimeout:   cfg.Network.DataTimeoutDuration(),
			ResponseHeaderTimeout: transferHeaderTimeout,
			MaxIdleConnsPerHost:   cfg.Backup.ParallelDownloads,
		},
	}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "onedrive-backup",
		Short:   "Back up the OneDrive camera roll",
		Long:    "Copies OneDrive photos and videos into a local tree laid out by date, and removes local duplicates.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newRemoveDuplicatesCmd())
	cmd.AddCommand(newFindDuplicatesCmd())
	cmd.AddCommand(newLogoutCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg. Subcommand flags only override the
// config file when the user set them explicitly.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	flags := cmd.Flags()

	if flags.Changed("pictures-subdir") {
		cli.PicturesSubdir = &flagPicturesSubdir
	}

	if flags.Changed("videos-subdir") {
		cli.VideosSubdir = &flagVideosSubdir
	}

	if flags.Changed("dir-template") {
		cli.DirTemplate = &flagDirTemplate
	}

	if flags.Changed("parallel") {
		cli.ParallelDownloads = &flagParallel
	}

	if flags.Changed("ssd") {
		cli.SSD = &flagSSD
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "text"

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.Logging.LogFormat
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// commandContext returns the command's context, or Background when the
// command is run outside Execute (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
