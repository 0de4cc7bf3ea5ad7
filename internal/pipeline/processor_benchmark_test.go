package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dunamismax/optimg/internal/domain"
)

func BenchmarkProcessDownsizeWebP(b *testing.B) {
	tmp := b.TempDir()
	src := filepath.Join(tmp, "bench.jpg")
	writeFile(b, src, withExif(b, buildJPEG(b, gradient(1920, 1080), 90)))

	p := newWebPProcessor(b)
	task := domain.Task{
		SourcePath:   src,
		MaxWidth:     1280,
		MaxHeight:    720,
		KeepMetadata: true,
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Process(context.Background(), task); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}

func BenchmarkFinalize(b *testing.B) {
	tmp := b.TempDir()
	src := filepath.Join(tmp, "orig.bin")
	writeFile(b, src, make([]byte, 64<<10))
	candidate := make([]byte, 32<<10)
	out := filepath.Join(tmp, "out.bin")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Finalize(src, candidate, true, out); err != nil {
			b.Fatalf("finalize: %v", err)
		}
	}
}
