package m3u

import (
	"fmt"
	"io"
	"strings"
)

// Writer provides streaming M3U playlist writing.
//
// Every entry carries the full attribute set (tvg-id, tvg-name, tvg-logo,
// tvg-chno, group-title); empty values emit as empty strings so the output
// shape is stable regardless of input completeness.
type Writer struct {
	w             io.Writer
	headerWritten bool
}

// NewWriter creates a new M3U writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the M3U header.
// This is automatically called by WriteEntry if not already written.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return nil
	}
	if _, err := fmt.Fprintln(w.w, "#EXTM3U"); err != nil {
		return fmt.Errorf("writing M3U header: %w", err)
	}
	w.headerWritten = true
	return nil
}

// WriteEntry writes a single channel entry to the M3U playlist.
func (w *Writer) WriteEntry(entry *Entry) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	extinf := fmt.Sprintf(
		`#EXTINF:-1 tvg-id="%s" tvg-name="%s" tvg-logo="%s" tvg-chno="%d" group-title="%s",%s`,
		escapeAttr(entry.TvgID),
		escapeAttr(entry.TvgName),
		escapeAttr(entry.TvgLogo),
		entry.ChannelNumber,
		escapeAttr(entry.GroupTitle),
		entry.Title,
	)

	if _, err := fmt.Fprintln(w.w, extinf); err != nil {
		return fmt.Errorf("writing EXTINF: %w", err)
	}

	if _, err := fmt.Fprintln(w.w, entry.URL); err != nil {
		return fmt.Errorf("writing URL: %w", err)
	}

	return nil
}

// escapeAttr escapes embedded double quotes in attribute values as %22.
func escapeAttr(s string) string {
	return strings.ReplaceAll(s, `"`, "%22")
}
