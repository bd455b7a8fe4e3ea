package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ElementaryStreamWriter appends complete access units to a single
// on-disk elementary-stream file: video.h265 (HEVC Annex-B) or
// audio.aac (raw AAC, ADTS-less), per the external sink contract.
type ElementaryStreamWriter struct {
	file *os.File
}

// NewElementaryStreamWriter creates outputDir/<prefix>_<timestamp>.<ext>
// and returns a writer appending whole frames to it.
func NewElementaryStreamWriter(outputDir, prefix, ext string, now time.Time) (*ElementaryStreamWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext)
	f, err := os.Create(filepath.Join(outputDir, name))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", ext, err)
	}
	return &ElementaryStreamWriter{file: f}, nil
}

// Write appends one complete access unit.
func (w *ElementaryStreamWriter) Write(frame []byte) error {
	_, err := w.file.Write(frame)
	return err
}

// Close flushes and closes the underlying file.
func (w *ElementaryStreamWriter) Close() error {
	return w.file.Close()
}
