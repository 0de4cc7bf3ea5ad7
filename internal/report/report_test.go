package report

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/optimg/internal/domain"
)

func fixedSummary(expected int) (*Summary, *time.Time) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Summary{now: func() time.Time { return now }, start: now}
	s.totals.Expected = expected
	return s, &now
}

func TestSummaryAddIsConcurrent(t *testing.T) {
	s := NewSummary(300)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			s.Add(domain.TaskResult{WasOptimized: true, OriginalSize: 1000, FinalSize: 400})
		}()
		go func() {
			defer wg.Done()
			s.Add(domain.TaskResult{WasOptimized: false, OriginalSize: 500, FinalSize: 500})
		}()
		go func() {
			defer wg.Done()
			s.AddFailure()
		}()
	}
	wg.Wait()

	got := s.Totals()
	if got.Found != 300 || got.Optimized != 100 || got.Skipped != 100 || got.Failed != 100 {
		t.Fatalf("unexpected counts %+v", got)
	}
	if got.SourceBytes != 150_000 || got.BytesSaved != 60_000 {
		t.Fatalf("unexpected byte totals %+v", got)
	}
	if pct := got.SavedPercent(); pct < 39.9 || pct > 40.1 {
		t.Fatalf("expected 40%% saved, got %.2f", pct)
	}
}

func TestFileLine(t *testing.T) {
	line := FileLine(domain.TaskResult{
		SourcePath:   "/photos/photo.jpg",
		OutputPath:   "/photos/photo.webp",
		WasOptimized: true,
		WasDownsized: true,
		HasMetadata:  true,
		OriginalSize: 2_000_000,
		FinalSize:    500_000,
		Width:        800,
		Height:       600,
	})
	for _, want := range []string{"photo.jpg -> photo.webp", "2.0 MB -> 500 kB", "(-75.0%)", "[800x600]", "[exif]"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}

	kept := FileLine(domain.TaskResult{SourcePath: "tiny.png", OriginalSize: 120, FinalSize: 120})
	if !strings.Contains(kept, "kept original") || !strings.Contains(kept, "120 B") {
		t.Fatalf("unexpected kept line %q", kept)
	}

	failed := FailureLine("/x/bad.png", errors.New("decoding stage: unreadable image"))
	if !strings.Contains(failed, "bad.png") || !strings.Contains(failed, "unreadable image") {
		t.Fatalf("unexpected failure line %q", failed)
	}
}

func TestProgressLine(t *testing.T) {
	s, now := fixedSummary(4)
	s.Add(domain.TaskResult{WasOptimized: true, OriginalSize: 3000, FinalSize: 1000})
	*now = now.Add(1500 * time.Millisecond)
	totals := s.Add(domain.TaskResult{OriginalSize: 10, FinalSize: 10})

	line := ProgressLine(totals)
	if !strings.HasPrefix(line, "[1.5s 50.0%]") || !strings.Contains(line, "saved 2.0 kB") {
		t.Fatalf("unexpected progress line %q", line)
	}
}

func TestWriteReport(t *testing.T) {
	s, now := fixedSummary(0)
	s.Add(domain.TaskResult{WasOptimized: true, OriginalSize: 4_000_000, FinalSize: 1_000_000})
	s.AddFailure()
	*now = now.Add(2 * time.Second)

	var buf bytes.Buffer
	if err := WriteReport(&buf, s.Totals()); err != nil {
		t.Fatalf("write report: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"2 files found, 1 optimized, 0 kept original, 1 failed", "4.0 MB", "Saved: 3.0 MB (75.0%)", "1.00 files/s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteReport(&buf, Totals{}); err != nil {
		t.Fatalf("write empty report: %v", err)
	}
	if !strings.Contains(buf.String(), "No supported image files") {
		t.Fatalf("unexpected empty report %q", buf.String())
	}
}

func TestSummaryAddSkip(t *testing.T) {
	s, _ := fixedSummary(2)
	s.Add(domain.TaskResult{WasOptimized: true, OriginalSize: 100, FinalSize: 60})
	got := s.AddSkip()

	if got.Found != 2 || got.Skipped != 1 || got.Optimized != 1 || got.Failed != 0 {
		t.Fatalf("unexpected counts %+v", got)
	}
	if got.SourceBytes != 100 {
		t.Fatalf("a skip must not add source bytes, got %d", got.SourceBytes)
	}

	line := SkipLine("/tmp/photo.png", "photo.webp is written by photo.jpg")
	if !strings.HasPrefix(line, "- photo.png") || !strings.Contains(line, "skipped: photo.webp") {
		t.Fatalf("unexpected skip line %q", line)
	}
}
