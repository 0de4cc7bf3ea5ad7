package pipeline

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFinalizeKeepsSmallerCandidate(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "photo.jpg")
	original := bytes.Repeat([]byte{0xAB}, 1000)
	writeFile(t, src, original)

	out := filepath.Join(tmp, "photo.webp")
	candidate := bytes.Repeat([]byte{0x01}, 400)

	decision, err := Finalize(src, candidate, true, out)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !decision.WasOptimized || decision.FinalSize != 400 || decision.OriginalSize != 1000 {
		t.Fatalf("unexpected decision %+v", decision)
	}
	assertFileBytes(t, out, candidate)
	assertFileBytes(t, src, original)
}

func TestFinalizeFallsBackToOriginal(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "photo.png")
	original := bytes.Repeat([]byte{0xCD}, 300)
	writeFile(t, src, original)

	for _, size := range []int{300, 301, 5000} {
		out := filepath.Join(tmp, "photo.webp")
		decision, err := Finalize(src, make([]byte, size), true, out)
		if err != nil {
			t.Fatalf("finalize candidate=%d: %v", size, err)
		}
		if decision.WasOptimized {
			t.Fatalf("candidate=%d: expected was_optimized=false", size)
		}
		if decision.FinalSize != 300 {
			t.Fatalf("candidate=%d: expected final size 300, got %d", size, decision.FinalSize)
		}
		assertFileBytes(t, out, original)
	}
	assertFileBytes(t, src, original)
}

func TestFinalizeWithoutComparisonAlwaysWritesCandidate(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "photo.png")
	writeFile(t, src, []byte("tiny"))

	out := filepath.Join(tmp, "photo.webp")
	candidate := bytes.Repeat([]byte{0x7F}, 2048)

	decision, err := Finalize(src, candidate, false, out)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !decision.WasOptimized || decision.FinalSize != 2048 {
		t.Fatalf("unexpected decision %+v", decision)
	}
	assertFileBytes(t, out, candidate)
}

func TestFinalizeSamePath(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "photo.webp")
	original := bytes.Repeat([]byte{0x11}, 100)
	writeFile(t, src, original)

	decision, err := Finalize(src, make([]byte, 500), true, src)
	if err != nil {
		t.Fatalf("finalize larger: %v", err)
	}
	if decision.WasOptimized {
		t.Fatal("expected original to be kept")
	}
	assertFileBytes(t, src, original)

	smaller := []byte("smaller")
	decision, err = Finalize(src, smaller, true, src)
	if err != nil {
		t.Fatalf("finalize smaller: %v", err)
	}
	if !decision.WasOptimized {
		t.Fatal("expected candidate to replace the file in place")
	}
	assertFileBytes(t, src, smaller)
	assertNoTempFiles(t, tmp)
}

func TestFinalizeIOErrors(t *testing.T) {
	tmp := t.TempDir()

	_, err := Finalize(filepath.Join(tmp, "missing.png"), []byte("x"), true, filepath.Join(tmp, "missing.webp"))
	if !errors.Is(err, ErrFinalizeIO) {
		t.Fatalf("expected ErrFinalizeIO for missing original, got %v", err)
	}

	src := filepath.Join(tmp, "photo.png")
	writeFile(t, src, []byte("original bytes"))
	_, err = Finalize(src, []byte("x"), true, filepath.Join(tmp, "no-such-dir", "photo.webp"))
	if !errors.Is(err, ErrFinalizeIO) {
		t.Fatalf("expected ErrFinalizeIO for unwritable output, got %v", err)
	}
	assertNoTempFiles(t, tmp)
}

func TestOutputPath(t *testing.T) {
	tbl := []struct {
		src, ext, want string
	}{
		{"photo.jpg", ".webp", "photo.webp"},
		{"/a/b/photo.tar.png", ".webp", "/a/b/photo.tar.webp"},
		{"noext", ".jpg", "noext.jpg"},
		{"dir.v2/photo", ".webp", "dir.v2/photo.webp"},
	}
	for _, tc := range tbl {
		if got := OutputPath(tc.src, tc.ext); got != tc.want {
			t.Fatalf("OutputPath(%q, %q): expected %q, got %q", tc.src, tc.ext, tc.want, got)
		}
	}
}

func TestIsTempFile(t *testing.T) {
	if !IsTempFile("/x/.optimg-12345.tmp") {
		t.Fatal("expected gate temp file to be recognized")
	}
	if IsTempFile("/x/photo.tmp") || IsTempFile("/x/.optimg-1.webp") {
		t.Fatal("unexpected temp file match")
	}
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func assertFileBytes(t testing.TB, path string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("%s: content mismatch (got %d bytes, want %d)", filepath.Base(path), len(got), len(want))
	}
}

func assertNoTempFiles(t testing.TB, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if IsTempFile(e.Name()) {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}
