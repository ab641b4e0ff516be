// Package subtitles renders timed transcript segments into subtitle
// documents. Rendering is deterministic: the same segments always produce
// byte-identical output.
package subtitles

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"subtrans/internal/media"
	"subtrans/internal/stage"
)

// SRT renders SubRip documents.
type SRT struct{}

// Render implements stage.SubtitleRenderer.
func (SRT) Render(segments []media.Segment) ([]byte, error) {
	var buf bytes.Buffer
	for i, segment := range segments {
		if err := validateSegment(segment); err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "%d\n", i+1)
		fmt.Fprintf(&buf, "%s --> %s\n", formatTimestamp(segment.Start, ','), formatTimestamp(segment.End, ','))
		buf.WriteString(strings.TrimSpace(segment.Text))
		buf.WriteString("\n\n")
	}
	return buf.Bytes(), nil
}

// VTT renders WebVTT documents.
type VTT struct{}

// Render implements stage.SubtitleRenderer.
func (VTT) Render(segments []media.Segment) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("WEBVTT\n\n")
	for _, segment := range segments {
		if err := validateSegment(segment); err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "%s --> %s\n", formatTimestamp(segment.Start, '.'), formatTimestamp(segment.End, '.'))
		buf.WriteString(strings.TrimSpace(segment.Text))
		buf.WriteString("\n\n")
	}
	return buf.Bytes(), nil
}

// ForFormat returns the renderer for a subtitle format name.
func ForFormat(format string) (stage.SubtitleRenderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "srt":
		return SRT{}, nil
	case "vtt":
		return VTT{}, nil
	default:
		return nil, fmt.Errorf("unsupported subtitle format %q", format)
	}
}

// Extension returns the file extension (without dot) for a format name, or
// the name itself when unknown.
func Extension(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

func validateSegment(segment media.Segment) error {
	if segment.Start < 0 || segment.End < segment.Start {
		return fmt.Errorf("segment %d: invalid timing %f..%f", segment.Index, segment.Start, segment.End)
	}
	return nil
}

// formatTimestamp renders seconds as HH:MM:SS<sep>mmm, rounded to the
// nearest millisecond.
func formatTimestamp(seconds float64, millisSep byte) string {
	totalMillis := int64(math.Round(seconds * 1000))
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	secs := (totalMillis % 60_000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, millisSep, millis)
}
