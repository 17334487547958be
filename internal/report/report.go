// Package report turns validator findings into diagnostics and prints them.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/TFMV/mdimg/internal/mdv"
	"github.com/TFMV/mdimg/internal/scan"
)

// Problem is the single finding reported for a line. Values are ordered by
// priority: when a report has several findings the lowest non-zero wins.
type Problem int

const (
	ProblemNone Problem = iota
	ProblemMissingAlt
	ProblemMissingAnchors
	ProblemDuplicatedAnchors
	ProblemAnchorsWithHash
	ProblemAnchorsWithEmptyText
	ProblemLocalRefNoHash
)

var problemText = map[Problem]string{
	ProblemMissingAlt:           "Image needs Alt.",
	ProblemMissingAnchors:       "Image is missing anchors.",
	ProblemDuplicatedAnchors:    "Image has duplicated anchors.",
	ProblemAnchorsWithHash:      "Image has anchors with hash.",
	ProblemAnchorsWithEmptyText: "Image has anchors with empty text.",
	ProblemLocalRefNoHash:       "Image local ref has no hash.",
}

var problemNames = map[Problem]string{
	ProblemNone:                 "none",
	ProblemMissingAlt:           "missing-alt",
	ProblemMissingAnchors:       "missing-anchors",
	ProblemDuplicatedAnchors:    "duplicated-anchors",
	ProblemAnchorsWithHash:      "anchors-with-hash",
	ProblemAnchorsWithEmptyText: "anchors-with-empty-text",
	ProblemLocalRefNoHash:       "local-ref-no-hash",
}

// String returns a stable identifier, used in JSON output.
func (p Problem) String() string {
	if name, ok := problemNames[p]; ok {
		return name
	}
	return fmt.Sprintf("problem(%d)", int(p))
}

// Message is the human readable description printed after the line.
func (p Problem) Message() string {
	return problemText[p]
}

// Classify picks the first problem of r in priority order.
func Classify(r mdv.Report) Problem {
	switch {
	case r.ImagesWithMissingAlt > 0:
		return ProblemMissingAlt
	case len(r.MissingAnchors) > 0:
		return ProblemMissingAnchors
	case len(r.DuplicatedAnchors) > 0:
		return ProblemDuplicatedAnchors
	case len(r.AnchorsWithHash) > 0:
		return ProblemAnchorsWithHash
	case len(r.AnchorsWithEmptyText) > 0:
		return ProblemAnchorsWithEmptyText
	case len(r.LocalRefNoHash) > 0:
		return ProblemLocalRefNoHash
	}
	return ProblemNone
}

// Diagnostic is one reported line.
type Diagnostic struct {
	File    string
	Line    int
	Text    string
	Problem Problem
}

// Diagnose returns the diagnostic for line, or false when r is clean.
func Diagnose(line scan.Line, r mdv.Report) (Diagnostic, bool) {
	p := Classify(r)
	if p == ProblemNone {
		return Diagnostic{}, false
	}
	return Diagnostic{File: line.File, Line: line.Number, Text: line.Text, Problem: p}, true
}

// String formats the diagnostic as "<line> : <message>". Missing alt text
// also names the file.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Text)
	b.WriteString(" : ")
	b.WriteString(d.Problem.Message())
	if d.Problem == ProblemMissingAlt {
		b.WriteString(" in ")
		b.WriteString(d.File)
	}
	return b.String()
}

// Printer writes diagnostics. Implementations serialise concurrent calls.
type Printer interface {
	Print(d Diagnostic) error
}

// TextPrinter writes one plain line per diagnostic.
type TextPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextPrinter returns a Printer writing plain text to w.
func NewTextPrinter(w io.Writer) *TextPrinter {
	return &TextPrinter{w: w}
}

// Print implements Printer.
func (p *TextPrinter) Print(d Diagnostic) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, d.String())
	return err
}

// JSONPrinter writes one JSON object per diagnostic.
type JSONPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONPrinter returns a Printer writing JSON lines to w.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{enc: json.NewEncoder(w)}
}

type jsonDiagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Problem string `json:"problem"`
	Message string `json:"message"`
}

// Print implements Printer.
func (p *JSONPrinter) Print(d Diagnostic) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(jsonDiagnostic{
		File:    d.File,
		Line:    d.Line,
		Text:    d.Text,
		Problem: d.Problem.String(),
		Message: d.Problem.Message(),
	})
}

// NewPrinter returns the printer for a --format value.
func NewPrinter(format string, w io.Writer) (Printer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return NewTextPrinter(w), nil
	case "json":
		return NewJSONPrinter(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}
