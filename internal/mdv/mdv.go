// Package mdv validates image and anchor usage in Markdown text.
//
// The Validator interface is the boundary the checker depends on; Goldmark
// is the implementation shipped with the tool. A Report carries six
// independent findings and says nothing about their priority, which is the
// reporting layer's business.
package mdv

import (
	"go.uber.org/zap"
)

// Options configures one Validate call.
type Options struct {
	// Debug logs every report at debug level.
	Debug bool
}

// Report holds the findings for one piece of Markdown text.
type Report struct {
	ImagesWithMissingAlt int      `json:"imagesWithMissingAlt"`
	MissingAnchors       []string `json:"missingAnchors"`
	DuplicatedAnchors    []string `json:"duplicatedAnchors"`
	AnchorsWithHash      []string `json:"anchorsWithHash"`
	AnchorsWithEmptyText []string `json:"anchorsWithEmptyText"`
	LocalRefNoHash       []string `json:"localRefNoHash"`
}

// Clean reports whether no field indicates a problem.
func (r Report) Clean() bool {
	return r.ImagesWithMissingAlt == 0 &&
		len(r.MissingAnchors) == 0 &&
		len(r.DuplicatedAnchors) == 0 &&
		len(r.AnchorsWithHash) == 0 &&
		len(r.AnchorsWithEmptyText) == 0 &&
		len(r.LocalRefNoHash) == 0
}

// Validator inspects Markdown text. Implementations must be safe for
// concurrent use and always return a well-formed Report.
type Validator interface {
	Validate(text string, opts Options) Report
}

// Func adapts a plain function to the Validator interface.
type Func func(text string, opts Options) Report

// Validate calls f.
func (f Func) Validate(text string, opts Options) Report { return f(text, opts) }

func logReport(logger *zap.Logger, text string, r Report) {
	logger.Debug("validated markdown",
		zap.String("text", text),
		zap.Int("images_missing_alt", r.ImagesWithMissingAlt),
		zap.Strings("missing_anchors", r.MissingAnchors),
		zap.Strings("duplicated_anchors", r.DuplicatedAnchors),
		zap.Strings("anchors_with_hash", r.AnchorsWithHash),
		zap.Strings("anchors_with_empty_text", r.AnchorsWithEmptyText),
		zap.Strings("local_ref_no_hash", r.LocalRefNoHash),
	)
}
