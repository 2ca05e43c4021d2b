// Package csvfile reads and writes CSV files a chunk at a time.
//
// Readers resume from a byte offset so an import job only has to remember
// where the previous chunk stopped, not how many rows it has read. Writers
// append, so an export job can flush each chunk as it goes.
//
// Files written by Windows programs often start with a UTF-8 BOM and may
// contain invalid UTF-8; the BOM is skipped and invalid bytes become '?'.
package csvfile

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("empty file")

var bom = []byte{0xEF, 0xBB, 0xBF}

func newReader(r io.Reader, comma rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func sanitize(rec []string) []string {
	for i, f := range rec {
		rec[i] = strings.ToValidUTF8(f, "?")
	}
	return rec
}

// skipBOM returns the number of leading bytes of f that are a UTF-8 BOM,
// leaving f positioned just after them.
func skipBOM(f *os.File) (int64, error) {
	buf := make([]byte, len(bom))
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if n == len(bom) && string(buf) == string(bom) {
		return int64(n), nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return 0, nil
}

// ReadHeader returns the header row of path and the byte offset where the
// first data row starts.
func ReadHeader(path string, comma rune) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	base, err := skipBOM(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	r := newReader(bufio.NewReader(f), comma)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, ErrEmptyFile
	}
	if err != nil {
		return nil, 0, fmt.Errorf("invalid csv header: %w", err)
	}
	return sanitize(header), base + r.InputOffset(), nil
}

// ReadChunk reads up to limit rows starting at byte offset off. It returns
// the rows and the offset of the row after the last one returned. Fewer than
// limit rows means the end of the file was reached.
func ReadChunk(path string, comma rune, off int64, limit int) ([][]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, off, err
	}
	defer f.Close()

	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return nil, off, fmt.Errorf("seek %s: %w", filepath.Base(path), err)
	}

	r := newReader(bufio.NewReader(f), comma)
	rows := make([][]string, 0, limit)
	for len(rows) < limit {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, off, fmt.Errorf("invalid csv: %w", err)
		}
		rows = append(rows, sanitize(rec))
	}
	return rows, off + r.InputOffset(), nil
}

// CountRows returns the number of data rows in path, not counting the header.
func CountRows(path string, comma rune) (int, error) {
	_, start, err := ReadHeader(path, comma)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return 0, err
	}

	r := newReader(bufio.NewReader(f), comma)
	r.ReuseRecord = true
	n := 0
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("invalid csv: %w", err)
		}
		n++
	}
}

// Truncate creates path, and its directory, as an empty file.
func Truncate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// AppendAt cuts path back to size bytes, writes rows after them and
// returns the new size. A chunk that is written again after a failed step
// replaces its earlier partial output instead of duplicating it.
func AppendAt(path string, size int64, rows [][]string, comma rune) (int64, error) {
	if err := os.Truncate(path, size); err != nil {
		return size, err
	}
	if err := Append(path, rows, comma); err != nil {
		return size, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return size, err
	}
	return info.Size(), nil
}

// Append writes rows to the end of path.
func Append(path string, rows [][]string, comma rune) error {
	if len(rows) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	w.Comma = comma
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
