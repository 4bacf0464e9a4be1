package backup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/internal/graph"
)

// Planning errors. Both are per-item: the item is skipped and the run goes on.
var (
	ErrUnrecognizedType    = errors.New("backup: unrecognized file type")
	ErrMissingCreationTime = errors.New("backup: item has no creation time")
)

// Outcome is the planning decision for one item.
type Outcome int

const (
	Scheduled Outcome = iota
	SkippedExists
	SkippedIgnored
	SkippedError
)

func (o Outcome) String() string {
	switch o {
	case Scheduled:
		return "scheduled"
	case SkippedExists:
		return "exists"
	case SkippedIgnored:
		return "ignored"
	case SkippedError:
		return "error"
	default:
		return "unknown"
	}
}

// Rule routes one kind of media to a subdirectory of the output tree.
// Extensions are lower-case and include the leading dot.
type Rule struct {
	Media      graph.MediaKind
	Extensions []string
	Subdir     string
	Template   string
}

func (r *Rule) matchesExt(ext string) bool {
	for _, e := range r.Extensions {
		if e == ext {
			return true
		}
	}

	return false
}

// Rules builds the picture and video rules from configuration. A rule with an
// empty subdirectory is left out.
func Rules(cfg *config.BackupConfig) []Rule {
	var rules []Rule

	if cfg.PicturesSubdir != "" {
		rules = append(rules, Rule{
			Media:      graph.MediaImage,
			Extensions: lowerAll(cfg.PictureExtensions),
			Subdir:     cfg.PicturesSubdir,
			Template:   cfg.DirTemplate,
		})
	}

	if cfg.VideosSubdir != "" {
		rules = append(rules, Rule{
			Media:      graph.MediaVideo,
			Extensions: lowerAll(cfg.VideoExtensions),
			Subdir:     cfg.VideosSubdir,
			Template:   cfg.DirTemplate,
		})
	}

	return rules
}

// IgnoreSet builds the set of extensions that are skipped silently.
func IgnoreSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = true
	}

	return set
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}

	return out
}

// Placement is a file scheduled for download and its destination, relative
// to the root of the output filesystem.
type Placement struct {
	Item graph.Item
	Path string
}

// PlanEntry is the planning result for one item. Path is empty when no rule
// applied; Err is set only for SkippedError.
type PlanEntry struct {
	Item    graph.Item
	Path    string
	Outcome Outcome
	Err     error
}

// Plan holds one entry per planned item, in input order.
type Plan struct {
	Entries []PlanEntry
}

// Scheduled returns the placements that need downloading.
func (p *Plan) Scheduled() []Placement {
	var out []Placement

	for i := range p.Entries {
		if p.Entries[i].Outcome == Scheduled {
			out = append(out, Placement{Item: p.Entries[i].Item, Path: p.Entries[i].Path})
		}
	}

	return out
}

// Count returns how many entries have the given outcome.
func (p *Plan) Count(o Outcome) int {
	n := 0

	for i := range p.Entries {
		if p.Entries[i].Outcome == o {
			n++
		}
	}

	return n
}

// Errors returns the planning errors, each prefixed with the item name.
func (p *Plan) Errors() []error {
	var errs []error

	for i := range p.Entries {
		if p.Entries[i].Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Entries[i].Item.Name, p.Entries[i].Err))
		}
	}

	return errs
}

// ExistsFunc reports whether a regular file is present at path.
type ExistsFunc func(path string) (bool, error)

// FileExists returns an ExistsFunc backed by fs. A directory at the
// destination does not count as an existing file.
func FileExists(fs billy.Basic) ExistsFunc {
	return func(p string) (bool, error) {
		info, err := fs.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}

			return false, err
		}

		return !info.IsDir(), nil
	}
}

// Planner decides where each remote file belongs. Its only I/O is the
// existence check.
type Planner struct {
	Rules  []Rule
	Ignore map[string]bool
	Name   string
	Exists ExistsFunc
	Logger *slog.Logger
}

// Plan produces one entry per item.
func (p *Planner) Plan(items []graph.Item) Plan {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	plan := Plan{Entries: make([]PlanEntry, 0, len(items))}

	// Destinations already claimed by an earlier item of this plan. Two
	// remote copies of one photo must not race for the same file.
	claimed := make(map[string]bool)

	for i := range items {
		entry := p.planItem(&items[i])

		if entry.Outcome == Scheduled {
			if claimed[entry.Path] {
				entry.Outcome = SkippedExists
				logger.Info("duplicate remote item, keeping the first copy",
					slog.String("path", entry.Path),
					slog.String("id", entry.Item.ID),
				)
			}

			claimed[entry.Path] = true
		}

		switch entry.Outcome {
		case SkippedError:
			logger.Warn("cannot place item",
				slog.String("name", entry.Item.Name),
				slog.String("error", entry.Err.Error()),
			)
		case SkippedExists:
			logger.Debug("already backed up", slog.String("path", entry.Path))
		case Scheduled:
			logger.Debug("scheduled", slog.String("path", entry.Path))
		case SkippedIgnored:
		}

		plan.Entries = append(plan.Entries, entry)
	}

	logger.Info("plan complete",
		slog.Int("scheduled", plan.Count(Scheduled)),
		slog.Int("existing", plan.Count(SkippedExists)),
		slog.Int("ignored", plan.Count(SkippedIgnored)),
		slog.Int("errors", plan.Count(SkippedError)),
	)

	return plan
}

func (p *Planner) planItem(item *graph.Item) PlanEntry {
	entry := PlanEntry{Item: *item}
	ext := Extension(item.Name)

	if p.Ignore[ext] {
		entry.Outcome = SkippedIgnored
		return entry
	}

	rule := p.selectRule(item.Media, ext)
	if rule == nil {
		entry.Outcome = SkippedError
		entry.Err = fmt.Errorf("%w: media %s, extension %q", ErrUnrecognizedType, item.Media, ext)

		return entry
	}

	if item.CreatedAt.IsZero() {
		entry.Outcome = SkippedError
		entry.Err = ErrMissingCreationTime

		return entry
	}

	// Local names are NFC so that the same remote name always lands on the
	// same file, however the uploading client encoded it.
	entry.Path = path.Join(rule.Subdir, ExpandTemplate(rule.Template, item.CreatedAt, p.Name), norm.NFC.String(item.Name))

	exists, err := p.Exists(entry.Path)
	if err != nil {
		entry.Outcome = SkippedError
		entry.Err = fmt.Errorf("checking %s: %w", entry.Path, err)

		return entry
	}

	if exists {
		entry.Outcome = SkippedExists
		return entry
	}

	entry.Outcome = Scheduled

	return entry
}

// selectRule prefers the media marker and falls back to the extension.
func (p *Planner) selectRule(media graph.MediaKind, ext string) *Rule {
	if media != graph.MediaNone {
		for i := range p.Rules {
			if p.Rules[i].Media == media {
				return &p.Rules[i]
			}
		}
	}

	for i := range p.Rules {
		if p.Rules[i].matchesExt(ext) {
			return &p.Rules[i]
		}
	}

	return nil
}

// Extension returns the lower-cased extension of the NFC form of name.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(norm.NFC.String(name)))
}
