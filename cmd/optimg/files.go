package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dunamismax/optimg/internal/pipeline"
	"github.com/dunamismax/optimg/internal/watch"
)

// collectFiles expands args into the image files to process. Directories
// contribute their direct image entries, or every nested one with recursive.
// Explicit file arguments are kept even with an unknown extension so the
// decoder gets to report them.
func collectFiles(args []string, recursive bool) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		files = append(files, path)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(arg))
			continue
		}

		var found []string
		if recursive {
			err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.Type().IsRegular() && candidate(path) {
					found = append(found, path)
				}
				return nil
			})
		} else {
			var entries []os.DirEntry
			entries, err = os.ReadDir(arg)
			for _, e := range entries {
				path := filepath.Join(arg, e.Name())
				if e.Type().IsRegular() && candidate(path) {
					found = append(found, path)
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", arg, err)
		}
		sort.Strings(found)
		for _, path := range found {
			add(path)
		}
	}
	return files, nil
}

func candidate(path string) bool {
	return watch.IsSupported(path) && !pipeline.IsTempFile(path)
}

// collision is a file left out because another file of the batch writes the
// same output.
type collision struct {
	path   string
	winner string
}

// planOutputs keeps one file per output path so no two tasks write the same
// file and no task overwrites another task's source. A file that already
// carries the target extension is its own output and always wins; otherwise
// the first file in order does.
func planOutputs(files []string, ext string) ([]string, []collision) {
	winners := make(map[string]string, len(files))
	for _, f := range files {
		out := pipeline.OutputPath(f, ext)
		cur, ok := winners[out]
		if !ok || (f == out && cur != out) {
			winners[out] = f
		}
	}

	keep := make([]string, 0, len(files))
	var dropped []collision
	for _, f := range files {
		if w := winners[pipeline.OutputPath(f, ext)]; w != f {
			dropped = append(dropped, collision{path: f, winner: w})
			continue
		}
		keep = append(keep, f)
	}
	return keep, dropped
}
