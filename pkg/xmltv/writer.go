package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// Writer provides streaming XMLTV document writing. All channels must be
// written before any programmes. Times serialize as UTC with an explicit
// +0000 offset.
type Writer struct {
	w             io.Writer
	headerWritten bool
	channelsDone  bool
}

// NewWriter creates a new XMLTV writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader opens the tv root element.
// This is automatically called by WriteChannel and WriteProgramme.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return nil
	}
	if _, err := fmt.Fprintln(w.w, `<tv>`); err != nil {
		return fmt.Errorf("writing tv element: %w", err)
	}
	w.headerWritten = true
	return nil
}

// WriteChannel writes a channel definition.
// All channels must be written before any programmes.
func (w *Writer) WriteChannel(ch *Channel) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if w.channelsDone {
		return fmt.Errorf("channels must be written before programmes")
	}

	if _, err := fmt.Fprintf(w.w, "  <channel id=\"%s\">\n", xmlEscape(ch.ID)); err != nil {
		return fmt.Errorf("writing channel start: %w", err)
	}

	if _, err := fmt.Fprintf(w.w, "    <display-name>%s</display-name>\n", xmlEscape(ch.DisplayName)); err != nil {
		return err
	}

	if ch.Icon != "" {
		if _, err := fmt.Fprintf(w.w, "    <icon src=\"%s\"/>\n", xmlEscape(ch.Icon)); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w.w, "  </channel>")
	return err
}

// WriteProgramme writes a programme entry.
func (w *Writer) WriteProgramme(prog *Programme) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	w.channelsDone = true

	startStr := formatXMLTVTime(prog.Start)
	stopStr := formatXMLTVTime(prog.Stop)

	if _, err := fmt.Fprintf(w.w, "  <programme start=\"%s\" stop=\"%s\" channel=\"%s\">\n",
		startStr, stopStr, xmlEscape(prog.Channel)); err != nil {
		return fmt.Errorf("writing programme start: %w", err)
	}

	if _, err := fmt.Fprintf(w.w, "    <title>%s</title>\n", xmlEscape(prog.Title)); err != nil {
		return err
	}

	if prog.SubTitle != "" {
		if _, err := fmt.Fprintf(w.w, "    <sub-title>%s</sub-title>\n", xmlEscape(prog.SubTitle)); err != nil {
			return err
		}
	}

	if prog.Description != "" {
		if _, err := fmt.Fprintf(w.w, "    <desc>%s</desc>\n", xmlEscape(prog.Description)); err != nil {
			return err
		}
	}

	if prog.Category != "" {
		if _, err := fmt.Fprintf(w.w, "    <category>%s</category>\n", xmlEscape(prog.Category)); err != nil {
			return err
		}
	}

	if prog.Language != "" {
		if _, err := fmt.Fprintf(w.w, "    <language>%s</language>\n", xmlEscape(prog.Language)); err != nil {
			return err
		}
	}

	if prog.Icon != "" {
		if _, err := fmt.Fprintf(w.w, "    <icon src=\"%s\"/>\n", xmlEscape(prog.Icon)); err != nil {
			return err
		}
	}

	if prog.EpisodeNum != "" {
		if _, err := fmt.Fprintf(w.w, "    <episode-num system=\"onscreen\">%s</episode-num>\n", xmlEscape(prog.EpisodeNum)); err != nil {
			return err
		}
	}

	if prog.Rating != "" {
		if _, err := fmt.Fprintf(w.w, "    <rating><value>%s</value></rating>\n", xmlEscape(prog.Rating)); err != nil {
			return err
		}
	}

	if prog.IsNew {
		if _, err := fmt.Fprintln(w.w, "    <new/>"); err != nil {
			return err
		}
	}
	if prog.IsPremiere {
		if _, err := fmt.Fprintln(w.w, "    <premiere/>"); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w.w, "  </programme>")
	return err
}

// WriteFooter closes the tv element.
func (w *Writer) WriteFooter() error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w.w, `</tv>`)
	return err
}

// formatXMLTVTime formats a time in XMLTV format with an explicit UTC offset.
func formatXMLTVTime(t time.Time) string {
	return t.UTC().Format("20060102150405 +0000")
}

// xmlEscape escapes special XML characters.
func xmlEscape(s string) string {
	var buf []byte
	_ = xml.EscapeText((*xmlEscapeWriter)(&buf), []byte(s))
	return string(buf)
}

// xmlEscapeWriter is a helper for xml.EscapeText.
type xmlEscapeWriter []byte

func (w *xmlEscapeWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
