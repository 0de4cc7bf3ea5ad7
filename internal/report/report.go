// Package report aggregates task results for terminal output.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dunamismax/optimg/internal/domain"
	"github.com/dustin/go-humanize"
)

const (
	iconOptimized = "✓"
	iconSkipped   = "-"
	iconFailed    = "✗"
)

// Totals is a point-in-time copy of a Summary.
type Totals struct {
	Expected    int
	Found       int
	Optimized   int
	Skipped     int
	Failed      int
	SourceBytes int64
	BytesSaved  int64
	Elapsed     time.Duration
}

// SavedPercent is the share of source bytes saved, 0 when nothing was read.
func (t Totals) SavedPercent() float64 {
	if t.SourceBytes <= 0 {
		return 0
	}
	return float64(t.BytesSaved) / float64(t.SourceBytes) * 100
}

// Summary is safe for concurrent use.
type Summary struct {
	mu     sync.Mutex
	start  time.Time
	now    func() time.Time
	totals Totals
}

// NewSummary starts the clock. expected is the number of files queued, used
// for progress percentages; 0 means unknown.
func NewSummary(expected int) *Summary {
	s := &Summary{now: time.Now}
	s.start = s.now()
	s.totals.Expected = expected
	return s
}

func (s *Summary) Add(res domain.TaskResult) Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totals.Found++
	s.totals.SourceBytes += res.OriginalSize
	if res.WasOptimized {
		s.totals.Optimized++
		s.totals.BytesSaved += res.BytesSaved()
	} else {
		s.totals.Skipped++
	}
	return s.snapshotLocked()
}

func (s *Summary) AddFailure() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totals.Found++
	s.totals.Failed++
	return s.snapshotLocked()
}

// AddSkip counts a file that was left out without being processed.
func (s *Summary) AddSkip() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totals.Found++
	s.totals.Skipped++
	return s.snapshotLocked()
}

func (s *Summary) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Summary) snapshotLocked() Totals {
	t := s.totals
	t.Elapsed = s.now().Sub(s.start)
	return t
}

// FileLine renders the status of one finished task.
func FileLine(res domain.TaskResult) string {
	name := filepath.Base(res.SourcePath)
	if !res.WasOptimized {
		return fmt.Sprintf("%s %s  %s (kept original)", iconSkipped, name, humanBytes(res.OriginalSize))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", iconOptimized, name)
	if out := filepath.Base(res.OutputPath); res.OutputPath != "" && out != name {
		fmt.Fprintf(&b, " -> %s", out)
	}
	fmt.Fprintf(&b, "  %s -> %s", humanBytes(res.OriginalSize), humanBytes(res.FinalSize))
	if res.OriginalSize > 0 {
		fmt.Fprintf(&b, " (-%.1f%%)", float64(res.BytesSaved())/float64(res.OriginalSize)*100)
	}
	if res.WasDownsized {
		fmt.Fprintf(&b, " [%dx%d]", res.Width, res.Height)
	}
	if res.HasMetadata {
		b.WriteString(" [exif]")
	}
	return b.String()
}

func FailureLine(path string, err error) string {
	return fmt.Sprintf("%s %s  %v", iconFailed, filepath.Base(path), err)
}

func SkipLine(path, reason string) string {
	return fmt.Sprintf("%s %s  skipped: %s", iconSkipped, filepath.Base(path), reason)
}

// ProgressLine is the single-line overall status, meant to be redrawn with a
// carriage return.
func ProgressLine(t Totals) string {
	pct := 0.0
	if t.Expected > 0 {
		pct = float64(t.Found) / float64(t.Expected) * 100
	}
	return fmt.Sprintf("[%.1fs %.1f%%] %s %d %s %d %s %d, saved %s",
		t.Elapsed.Seconds(), pct,
		iconOptimized, t.Optimized,
		iconSkipped, t.Skipped,
		iconFailed, t.Failed,
		humanBytes(t.BytesSaved))
}

// WriteReport prints the final report.
func WriteReport(w io.Writer, t Totals) error {
	if t.Found == 0 {
		_, err := fmt.Fprintln(w, "No supported image files were found.")
		return err
	}

	perSecond := 0.0
	if secs := t.Elapsed.Seconds(); secs > 0 {
		perSecond = float64(t.Found) / secs
	}

	_, err := fmt.Fprintf(w,
		"\n%s found, %d optimized, %d kept original, %d failed\n"+
			"Total source size: %s\n"+
			"Saved: %s (%.1f%%)\n"+
			"Elapsed: %s (%.2f files/s)\n",
		plural(t.Found, "file"), t.Optimized, t.Skipped, t.Failed,
		humanBytes(t.SourceBytes),
		humanBytes(t.BytesSaved), t.SavedPercent(),
		t.Elapsed.Round(10*time.Millisecond), perSecond,
	)
	return err
}

func humanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
