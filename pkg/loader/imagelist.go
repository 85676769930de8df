package loader

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ListEntry is one line of a .lst weighted image list.
type ListEntry struct {
	Path   string
	Weight float64
}

// ParseListLine splits "path,weight" on the last comma. A missing,
// non-numeric or non-positive weight yields 1.0; a non-numeric tail is
// taken to be part of the file name.
func ParseListLine(line string) (ListEntry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ListEntry{}, false
	}
	line = strings.Trim(line, `"`)

	i := strings.LastIndexByte(line, ',')
	if i < 0 {
		return ListEntry{Path: line, Weight: 1}, true
	}
	path := strings.Trim(strings.TrimSpace(line[:i]), `"`)
	w, err := strconv.ParseFloat(strings.TrimSpace(line[i+1:]), 64)
	if err != nil {
		return ListEntry{Path: line, Weight: 1}, true
	}
	if w <= 0 {
		w = 1
	}
	if path == "" {
		return ListEntry{}, false
	}
	return ListEntry{Path: path, Weight: w}, true
}

// ParseImageList reads a .lst stream.
func ParseImageList(r io.Reader, opts ParseOptions) ([]ListEntry, error) {
	var entries []ListEntry
	err := readLines(r, opts, func(_ int, line string) error {
		if e, ok := ParseListLine(line); ok {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadImageList reads a .lst file from disk.
func LoadImageList(path string, opts ParseOptions) ([]ListEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image list: %w", err)
	}
	defer file.Close()

	entries, err := ParseImageList(file, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
