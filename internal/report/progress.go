package report

import (
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	"github.com/fatih/color"
)

// Progress prints an overwriting "Processed N records" line and a notice
// before each reconciliation pass.
type Progress struct {
	dedup.NopObserver
	w     io.Writer
	every int64
	last  int64
}

// NewProgress writes to w, refreshing the status line every `every` records.
func NewProgress(w io.Writer, every int) *Progress {
	if every <= 0 {
		every = 1
	}
	return &Progress{w: w, every: int64(every)}
}

func (p *Progress) RecordScanned(_ string, total int64) {
	p.last = total
	if total%p.every == 0 {
		fmt.Fprintf(p.w, "\rProcessed %d records", total)
	}
}

func (p *Progress) FlushStarted(_ string, keys int) {
	fmt.Fprintf(p.w, "\rProcessed %d records\nLoaded %d values, cleaning\n", p.last, keys)
}

// Summary prints the final totals of a run.
func Summary(w io.Writer, stats dedup.Stats, dryRun bool) {
	verb := "deleted"
	if dryRun {
		verb = color.YellowString("would delete")
	}
	fmt.Fprintf(w, "Processed %s, %s %s duplicates",
		color.CyanString("%d", stats.Processed),
		verb,
		color.GreenString("%d", stats.Removed),
	)
	if stats.Failed > 0 {
		fmt.Fprintf(w, " (%s)", color.RedString("%d deletions failed", stats.Failed))
	}
	fmt.Fprintln(w)
}
