package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/onedrive-backup/internal/taskexec"
)

const progressTemplate = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`

// progressObserver renders executor snapshots. On a terminal it drives a
// progress bar; elsewhere each snapshot is logged at debug level.
type progressObserver struct {
	w           io.Writer
	interactive bool
	bytes       bool
	logger      *slog.Logger

	mu    sync.Mutex
	bar   *pb.ProgressBar
	label string
}

func newProgressObserver(w io.Writer, quiet, bytes bool, logger *slog.Logger) *progressObserver {
	return &progressObserver{
		w:           w,
		interactive: !quiet && isTerminal(w),
		bytes:       bytes,
		logger:      logger,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Observe implements taskexec.Observer.
func (o *progressObserver) Observe(p taskexec.Progress) {
	if !o.interactive {
		o.logger.Debug("progress",
			slog.String("label", p.Label),
			slog.Int64("completed", p.Completed),
			slog.Int64("total", p.Total),
			slog.Int("finished", p.Finished()),
			slog.Int("tasks", p.Tasks),
			slog.Int("active", len(p.Active)),
		)

		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bar != nil && o.label != p.Label {
		o.bar.Finish()
		o.bar = nil
	}

	if o.bar == nil {
		o.bar = o.start(p.Total)
		o.label = p.Label
	}

	o.bar.SetTotal(p.Total)
	o.bar.SetCurrent(p.Completed)
	o.bar.Set("prefix", fmt.Sprintf("%s %d/%d ", p.Label, p.Finished(), p.Tasks))
}

func (o *progressObserver) start(total int64) *pb.ProgressBar {
	bar := pb.New64(total).SetTemplateString(progressTemplate)
	bar.SetWriter(o.w)
	// Only called for terminals; pb detects one on *os.File writers alone.
	bar.Set(pb.Terminal, true)
	bar.Set(pb.ReturnSymbol, "\r")

	if o.bytes {
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
	}

	return bar.Start()
}

// Finish stops the bar, if one was started. Safe to call more than once.
func (o *progressObserver) Finish() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bar != nil {
		o.bar.Finish()
		o.bar = nil
	}
}
