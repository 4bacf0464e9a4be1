package backup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-billy/v5"

	"github.com/tonimelisma/onedrive-backup/internal/graph"
	"github.com/tonimelisma/onedrive-backup/internal/taskexec"
)

// Remote is the subset of the Graph client a backup run needs.
type Remote interface {
	Lister
	Downloader
	Me(ctx context.Context) (*graph.User, error)
}

// Options configure one backup run.
type Options struct {
	// Name is the backup name substituted for {name} in directory templates.
	Name          string
	ExpectedUser  string
	ExpectedEmail string
	Roots         []Root
	Rules         []Rule
	Ignore        map[string]bool
	// Times sets modification times on committed files. Nil falls back to
	// billy.Change when the filesystem supports it.
	Times TimesFunc
}

// Summary reports what a run did.
type Summary struct {
	User       string  `json:"user"`
	Listed     int     `json:"listed"`
	Scheduled  int     `json:"scheduled"`
	Existing   int     `json:"existing"`
	Ignored    int     `json:"ignored"`
	PlanErrors int     `json:"plan_errors"`
	Downloaded int     `json:"downloaded"`
	Failed     int     `json:"failed"`
	Bytes      int64   `json:"bytes"`
	Failures   []error `json:"-"`
}

// OK reports whether every item was either backed up or deliberately skipped.
func (s *Summary) OK() bool {
	return s.PlanErrors == 0 && s.Failed == 0
}

// Runner executes backup runs against one remote and one output tree.
type Runner struct {
	remote Remote
	fs     billy.Filesystem
	exec   *taskexec.Executor
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(remote Remote, fs billy.Filesystem, exec *taskexec.Executor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{remote: remote, fs: fs, exec: exec, logger: logger}
}

// Run verifies the signed-in identity, lists the remote roots, plans
// placements, and downloads what is missing. Identity and listing failures
// abort the run; planning and download failures are counted in the Summary.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	user, err := r.remote.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching signed-in user: %w", err)
	}

	if err := graph.VerifyIdentity(user, opts.ExpectedUser, opts.ExpectedEmail); err != nil {
		return nil, err
	}

	r.logger.Info("signed in", slog.String("user", user.DisplayName))

	items, err := NewCatalog(r.remote, r.logger).ListAll(ctx, opts.Roots)
	if err != nil {
		return nil, err
	}

	planner := &Planner{
		Rules:  opts.Rules,
		Ignore: opts.Ignore,
		Name:   opts.Name,
		Exists: FileExists(r.fs),
		Logger: r.logger,
	}

	plan := planner.Plan(items)
	placements := plan.Scheduled()

	sum := &Summary{
		User:       user.DisplayName,
		Listed:     len(items),
		Scheduled:  len(placements),
		Existing:   plan.Count(SkippedExists),
		Ignored:    plan.Count(SkippedIgnored),
		PlanErrors: plan.Count(SkippedError),
		Failures:   plan.Errors(),
	}

	fetcher := NewFetcher(r.remote, r.fs, opts.Times, r.logger)
	defer fetcher.Cleanup()

	results := taskexec.Run(ctx, r.exec, "download", Tasks(placements), fetcher.Prepare)

	for i := range results {
		if results[i].Err != nil {
			continue
		}

		sum.Downloaded++
		sum.Bytes += results[i].Value
	}

	sum.Failed = taskexec.Failures(results)
	sum.Failures = append(sum.Failures, taskexec.Errors(results)...)

	r.logger.Info("backup complete",
		slog.Int("downloaded", sum.Downloaded),
		slog.Int("failed", sum.Failed),
		slog.Int("plan_errors", sum.PlanErrors),
		slog.Int64("bytes", sum.Bytes),
	)

	return sum, nil
}
