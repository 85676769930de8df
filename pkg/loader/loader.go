// Package loader parses the text inputs slidetree accepts: .txt source lists
// and .lst weighted image lists.
package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/vanderheijden86/slidetree/pkg/filter"
	"github.com/vanderheijden86/slidetree/pkg/logging"
	"github.com/vanderheijden86/slidetree/pkg/metrics"
)

// DefaultMaxBufferSize is the default line buffer size (1MB).
const DefaultMaxBufferSize = 1024 * 1024

// MaxNestingDepth bounds inline expansion of nested .txt files.
const MaxNestingDepth = 16

var (
	imageExts = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".bmp": true, ".webp": true, ".tiff": true,
	}
	videoExts = map[string]bool{
		".mp4": true, ".mkv": true, ".webm": true, ".avi": true,
		".mov": true, ".wmv": true,
	}
)

// IsImageFile reports whether path has a still-image extension.
func IsImageFile(path string) bool { return imageExts[strings.ToLower(filepath.Ext(path))] }

// IsVideoFile reports whether path has a video extension.
func IsVideoFile(path string) bool { return videoExts[strings.ToLower(filepath.Ext(path))] }

// IsListFile reports whether path is a .txt source list or a .lst image list.
func IsListFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".lst":
		return true
	}
	return false
}

// IsTreeFile reports whether path is a .tree snapshot.
func IsTreeFile(path string) bool { return strings.EqualFold(filepath.Ext(path), ".tree") }

// ParseOptions configures the parsers.
type ParseOptions struct {
	// WarningHandler is called with warning messages (unknown modifiers,
	// missing paths, overlong lines). If nil, warnings go to the logger.
	WarningHandler func(string)

	// BufferSize sets the maximum line size (in bytes) to read at once.
	// Lines longer than this are skipped with a warning.
	// If 0, uses DefaultMaxBufferSize.
	BufferSize int

	// Filter receives [+] and [-] rules from source lists. If nil a fresh
	// filter is created and returned on the SourceList.
	Filter *filter.Filter

	// GraftOffset shifts every default and explicit graft level.
	GraftOffset int

	// IgnoreGlobalMode drops mode and dont-recurse settings declared on "*"
	// lines. Nested lists never set them.
	IgnoreGlobalMode bool
}

func (o ParseOptions) warn() func(string) {
	if o.WarningHandler != nil {
		return o.WarningHandler
	}
	return logging.Warner("loader", nil)
}

// readLines feeds every non-empty line of r to fn with its 1-based number.
// The UTF-8 BOM is stripped and overlong lines are skipped with a warning.
func readLines(r io.Reader, opts ParseOptions, fn func(lineNum int, line string) error) error {
	defer metrics.Timer(metrics.ListParse)()

	maxCapacity := opts.BufferSize
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxBufferSize
	}
	reader := bufio.NewReaderSize(r, maxCapacity)
	warn := opts.warn()

	lineNum := 0
	for {
		lineNum++
		line, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("error reading line %d: %w", lineNum, err)
		}

		if isPrefix {
			warn(fmt.Sprintf("skipping line %d: line too long (exceeds %d bytes)", lineNum, maxCapacity))
			for isPrefix {
				_, isPrefix, err = reader.ReadLine()
				if err == io.EOF {
					break
				}
				if err != nil {
					return fmt.Errorf("error skipping long line at line %d: %w", lineNum, err)
				}
			}
			continue
		}

		if lineNum == 1 {
			line = stripBOM(line)
		}
		text := strings.TrimSpace(string(line))
		if text == "" {
			continue
		}
		if err := fn(lineNum, text); err != nil {
			return err
		}
	}
}

// stripBOM removes the UTF-8 Byte Order Mark if present
func stripBOM(b []byte) []byte {
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		return b[3:]
	}
	return b
}
