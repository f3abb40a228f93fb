package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// WriteDump creates path and fills it through write. A ".lz4" or ".xz"
// extension compresses the output.
func WriteDump(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close dump: %w", cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := writeCompressed(bw, filepath.Ext(path), write); err != nil {
		return fmt.Errorf("write dump %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write dump %s: %w", path, err)
	}
	return nil
}

func writeCompressed(w io.Writer, ext string, write func(io.Writer) error) error {
	switch strings.ToLower(ext) {
	case ".lz4":
		zw := lz4.NewWriter(w)
		if err := write(zw); err != nil {
			return err
		}
		return zw.Close()
	case ".xz":
		zw, err := xz.NewWriter(w)
		if err != nil {
			return err
		}
		if err := write(zw); err != nil {
			return err
		}
		return zw.Close()
	default:
		return write(w)
	}
}

// OpenDump reads a dump written by WriteDump.
func OpenDump(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	var r io.Reader = f
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lz4":
		r = lz4.NewReader(f)
	case ".xz":
		if r, err = xz.NewReader(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("open dump: %w", err)
		}
	}
	return readCloser{Reader: r, Closer: f}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// DefaultDumpName names a dump after its kind and the run id.
func DefaultDumpName(kind, runID, ext string) string {
	return fmt.Sprintf("%s-%s%s", kind, runID, ext)
}
