package utils

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// OpenVcfScanner opens a plain or gzipped VCF and returns a line
// scanner over its decompressed content. Compression is detected from
// the gzip magic bytes, not the file extension (shard copies of
// compressed artifacts carry a shard-key suffix). The returned closer
// must be called when scanning is done.
func OpenVcfScanner(path string) (*bufio.Scanner, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	buffered := bufio.NewReader(f)
	var reader io.Reader = buffered
	closer := f.Close

	if magic, err := buffered.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gr, err := gzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		reader = gr
		closer = func() error {
			gr.Close()
			return f.Close()
		}
	}

	scanner := bufio.NewScanner(reader)
	// some annotation rows run long; give the scanner room
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return scanner, closer, nil
}

// AtomicWriteFile writes data next to the destination and renames it
// into place, so a reader never observes a half-written file.
func AtomicWriteFile(path string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// CopyFile copies src to dst atomically
func CopyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	return AtomicWriteFile(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// TailLines keeps the last n lines it has been fed; used to bound
// captured diagnostic output from external tools.
type TailLines struct {
	N     int
	lines []string
}

func (t *TailLines) Add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.N {
		t.lines = t.lines[len(t.lines)-t.N:]
	}
}

func (t *TailLines) Lines() []string {
	return t.lines
}
