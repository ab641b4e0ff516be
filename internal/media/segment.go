package media

import "strings"

// Segment is one time-aligned piece of speech.
type Segment struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Transcript is the ordered output of speech recognition for one audio file.
type Transcript struct {
	Language string
	Segments []Segment
}

// Empty reports whether the transcript carries no usable speech.
func (t Transcript) Empty() bool {
	if len(t.Segments) == 0 {
		return true
	}
	for _, seg := range t.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			return false
		}
	}
	return true
}

// CloneSegments returns a copy of the segment slice so fan-out workers can
// hand translated text around without sharing backing arrays.
func CloneSegments(segments []Segment) []Segment {
	cp := make([]Segment, len(segments))
	copy(cp, segments)
	return cp
}
