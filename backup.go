package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-backup/internal/backup"
	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/internal/graph"
	"github.com/tonimelisma/onedrive-backup/internal/taskexec"
)

// Backup command flags.
var (
	flagExpectedEmail  string
	flagPicturesSubdir string
	flagVideosSubdir   string
	flagDirTemplate    string
	flagParallel       int
	flagForceOAuth     bool
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup <name> <expected-username> <output-dir>",
		Short: "Download new camera roll items into the output directory",
		Long: `Lists the configured OneDrive special folders and downloads every picture and
video that is not yet present under <output-dir>. <name> identifies the backup:
it keys the saved sign-in and is substituted for {name} in the directory
template. The run aborts unless the signed-in display name is <expected-username>.`,
		Args: cobra.ExactArgs(3),
		RunE: runBackup,
	}

	cmd.Flags().StringVar(&flagExpectedEmail, "expected-email", "", "abort unless the signed-in email matches")
	cmd.Flags().StringVar(&flagPicturesSubdir, "pictures-subdir", "", "output subdirectory for pictures (empty disables pictures)")
	cmd.Flags().StringVar(&flagVideosSubdir, "videos-subdir", "", "output subdirectory for videos (empty disables videos)")
	cmd.Flags().StringVar(&flagDirTemplate, "dir-template", "", "directory template ({year} {month} {day} {name})")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "number of concurrent downloads")
	cmd.Flags().BoolVar(&flagForceOAuth, "force-oauth", false, "ignore the saved sign-in and authorize again")

	return cmd
}

// remote routes content downloads through a client without an overall
// request timeout; everything else uses the metadata client.
type remote struct {
	*graph.Client
	transfers *graph.Client
}

func (r remote) OpenDownload(ctx context.Context, url string) (*graph.Download, error) {
	return r.transfers.OpenDownload(ctx, url)
}

func runBackup(cmd *cobra.Command, args []string) error {
	name, expectedUser, outputDir := args[0], args[1], args[2]
	cfg := resolvedCfg
	logger := buildLogger(os.Stderr)

	if err := config.ValidateAuth(&cfg.Auth); err != nil {
		return err
	}

	secret, err := cfg.Auth.Secret()
	if err != nil {
		return err
	}

	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("resolving output directory: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	release, err := lockDir(outputDir)
	if err != nil {
		return err
	}
	defer release()

	ctx := shutdownContext(commandContext(cmd), logger)

	tokens, err := graph.Authorize(ctx, graph.AuthorizeOptions{
		Credentials: graph.Credentials{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: secret,
			RedirectURI:  cfg.Auth.RedirectURI,
		},
		TokenPath:       config.TokenPath(name),
		Force:           flagForceOAuth,
		CertFile:        cfg.Auth.CertFile,
		KeyFile:         cfg.Auth.KeyFile,
		CallbackTimeout: cfg.Auth.CallbackTimeoutDuration(),
	}, logger)
	if err != nil {
		return err
	}

	// Fail before listing anything if the saved sign-in no longer works.
	if _, err := tokens.Token(); err != nil {
		return fmt.Errorf("signing in (try --force-oauth): %w", err)
	}

	r := remote{
		Client:    graph.NewClient(graph.DefaultBaseURL, metadataHTTPClient(cfg), tokens, logger),
		transfers: graph.NewClient(graph.DefaultBaseURL, transferHTTPClient(cfg), tokens, logger),
	}

	progress := newProgressObserver(os.Stderr, flagQuiet || flagJSON, true, logger)
	exec := taskexec.NewExecutor(cfg.Backup.ParallelDownloads, progress, logger)

	runner := backup.NewRunner(r, osfs.New(outputDir), exec, logger)

	sum, err := runner.Run(ctx, backup.Options{
		Name:          name,
		ExpectedUser:  expectedUser,
		ExpectedEmail: flagExpectedEmail,
		Roots:         backup.DefaultRoots(cfg.Backup.Sources),
		Rules:         backup.Rules(&cfg.Backup),
		Ignore:        backup.IgnoreSet(cfg.Backup.IgnoreExtensions),
		Times:         backup.OSTimes(outputDir),
	})

	progress.Finish()

	if err != nil {
		return err
	}

	if err := printBackupSummary(sum, logger); err != nil {
		return err
	}

	if !sum.OK() {
		return errIncomplete
	}

	return nil
}

func printBackupSummary(sum *backup.Summary, logger *slog.Logger) error {
	for _, failure := range sum.Failures {
		logger.Error("item not backed up", slog.String("error", failure.Error()))
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(sum); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	if flagQuiet {
		return nil
	}

	printTable(os.Stdout, []string{"ITEMS", "COUNT"}, [][]string{
		{"listed", fmt.Sprint(sum.Listed)},
		{"already present", fmt.Sprint(sum.Existing)},
		{"ignored", fmt.Sprint(sum.Ignored)},
		{"not placed", fmt.Sprint(sum.PlanErrors)},
		{"downloaded", fmt.Sprint(sum.Downloaded)},
		{"failed", fmt.Sprint(sum.Failed)},
	})

	statusf(flagQuiet, "Downloaded %s for %s.\n", formatSize(sum.Bytes), sum.User)

	return nil
}
