// Package backup copies OneDrive media into a local directory tree laid out
// by creation date.
//
// A backup run lists every item under the configured roots (Catalog), decides
// where each file belongs (Planner), and downloads the files that are not yet
// present (Fetcher) through a taskexec.Executor. Runner ties the phases
// together.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/tonimelisma/onedrive-backup/internal/graph"
)

// cameraRoll is the special folder name OneDrive uses for phone uploads.
const cameraRoll = "cameraroll"

// Lister fetches one page of a children listing.
type Lister interface {
	ListPage(ctx context.Context, path string) (graph.Page, error)
}

// Root is a starting point for a catalog walk. Display is only used in logs.
type Root struct {
	Display string
	Path    string
}

// DefaultRoots maps special folder names to catalog roots.
func DefaultRoots(sources []string) []Root {
	roots := make([]Root, 0, len(sources))

	for _, name := range sources {
		display := name
		if name == cameraRoll {
			display = "Camera Roll"
		}

		roots = append(roots, Root{Display: display, Path: graph.SpecialFolderPath(name)})
	}

	return roots
}

// Catalog enumerates every file below a set of roots.
type Catalog struct {
	lister Lister
	logger *slog.Logger
}

// NewCatalog creates a Catalog backed by lister.
func NewCatalog(lister Lister, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}

	return &Catalog{lister: lister, logger: logger}
}

// ListAll walks every root and returns all files found. The walk uses a
// stack, so files come back in no particular order. Any listing error aborts
// the walk and no partial result is returned.
func (c *Catalog) ListAll(ctx context.Context, roots []Root) ([]graph.Item, error) {
	stack := make([]Root, 0, len(roots))

	// Push in reverse so the first root is listed first.
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	var (
		files   []graph.Item
		folders int
		pages   int
	)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("listing remote items: %w", err)
		}

		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		c.logger.Debug("listing folder", slog.String("folder", top.Display))

		page, err := c.lister.ListPage(ctx, top.Path)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", top.Display, err)
		}

		pages++

		if page.NextLink != "" {
			stack = append(stack, Root{Display: top.Display + " (continued)", Path: page.NextLink})
		}

		for i := range page.Items {
			item := page.Items[i]

			if item.IsFolder() {
				folders++
				stack = append(stack, Root{
					Display: path.Join(top.Display, item.Name),
					Path:    graph.ChildrenPath(item.ID),
				})

				continue
			}

			files = append(files, item)
		}
	}

	c.logger.Info("remote listing complete",
		slog.Int("files", len(files)),
		slog.Int("folders", folders),
		slog.Int("pages", pages),
	)

	return files, nil
}
