// Package rag assembles the bounded context document handed to the
// recommendation model: a metrics summary followed by retrieved notes.
package rag

import (
	"strings"
	"unicode/utf8"
)

// SourceMetrics labels the metrics summary segment.
const SourceMetrics = "metrics"

const segmentSeparator = "\n\n"

// Segment is one labelled block of context.
type Segment struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score,omitempty"` // similarity for retrieved segments
}

// Render returns the segment as it appears in the prompt.
func (s Segment) Render() string {
	return "[" + s.Source + "]\n" + s.Text
}

// Size is the rendered length in characters.
func (s Segment) Size() int {
	return utf8.RuneCountInString(s.Render())
}

// Document is an ordered context: the metrics summary first, then retrieved
// segments in descending relevance.
type Document struct {
	Symbol   string    `json:"symbol"`
	Period   string    `json:"period,omitempty"`
	Budget   int       `json:"budget"`
	Segments []Segment `json:"segments"`
}

// Summary returns the metrics summary segment.
func (d *Document) Summary() Segment {
	if len(d.Segments) == 0 {
		return Segment{}
	}
	return d.Segments[0]
}

// Retrieved returns the knowledge segments that made it under the budget.
func (d *Document) Retrieved() []Segment {
	if len(d.Segments) < 2 {
		return nil
	}
	return append([]Segment(nil), d.Segments[1:]...)
}

// Render joins all segments in order.
func (d *Document) Render() string {
	parts := make([]string, len(d.Segments))
	for i, s := range d.Segments {
		parts[i] = s.Render()
	}
	return strings.Join(parts, segmentSeparator)
}

// Size is the rendered length in characters, separators included.
func (d *Document) Size() int {
	return utf8.RuneCountInString(d.Render())
}
