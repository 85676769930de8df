// Package export writes a weighted tree to the formats samplers and people
// consume: weighted image lists, SQLite databases, weight charts and text
// trees.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vanderheijden86/slidetree/pkg/metrics"
	"github.com/vanderheijden86/slidetree/pkg/model"
	"github.com/vanderheijden86/slidetree/pkg/weights"
)

// ErrLengthMismatch is returned when items and weights differ in length.
var ErrLengthMismatch = errors.New("items and weights differ in length")

// ListMeta is written as the comment header of an image list.
type ListMeta struct {
	Written time.Time
	Inputs  []string
	Mode    string
	// Uniform writes every item with weight 1, for random sampling.
	Uniform bool
}

// WriteImageList writes one "path,weight" line per item after a commented
// header. The output reads back with loader.ParseImageList.
func WriteImageList(w io.Writer, items []string, ws []float64, meta ListMeta) error {
	if len(items) != len(ws) {
		return fmt.Errorf("%w: %d items, %d weights", ErrLengthMismatch, len(items), len(ws))
	}
	written := meta.Written
	if written.IsZero() {
		written = time.Now()
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Written: %s\n", written.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "# Input files: %s\n", strings.Join(meta.Inputs, ", "))
	fmt.Fprintf(bw, "# Mode arguments: %s\n", meta.Mode)
	bw.WriteString("# Format: image_path,weight\n")
	for i, item := range items {
		bw.WriteString(item)
		bw.WriteByte(',')
		bw.WriteString(strconv.FormatFloat(ws[i], 'g', -1, 64))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// SaveImageList flattens tree and writes the list to path, replacing any
// existing file only once the new one is complete.
func SaveImageList(path string, tree *model.Tree, meta ListMeta) error {
	defer metrics.Timer(metrics.Export)()

	items, ws, err := weights.Flatten(tree)
	if err != nil {
		return err
	}
	if meta.Mode == "" {
		meta.Mode = tree.Mode.String()
	}
	if meta.Uniform {
		for i := range ws {
			ws[i] = 1
		}
		meta.Mode += " random"
	}
	return writeAtomic(path, func(w io.Writer) error {
		return WriteImageList(w, items, ws, meta)
	})
}

func writeAtomic(path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".slidetree-*"+filepath.Ext(path))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
