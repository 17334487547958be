// Package scan finds the image lines of matched Markdown files.
package scan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// DefaultPattern is the file name checked when none is configured.
const DefaultPattern = "index.md"

// DefaultExtensions are the image tokens searched for on each line.
var DefaultExtensions = []string{"jpeg", "png", "svg", "gif", "jpg"}

// Line is one trimmed image line of a matched file.
type Line struct {
	File   string
	Number int // 1-based
	Text   string
}

// Options configures a Scanner.
type Options struct {
	Fs         afero.Fs // afero.NewOsFs() when nil
	Pattern    string   // filepath.Match glob on the base name; DefaultPattern when empty
	Extensions []string // DefaultExtensions when empty
}

// Scanner matches file names and streams their image lines. A Scanner owns
// its compiled pattern and is safe for concurrent use.
type Scanner struct {
	fs      afero.Fs
	pattern string
	image   *regexp.Regexp
}

// New validates opts and builds a Scanner.
func New(opts Options) (*Scanner, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", opts.Pattern, err)
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}

	quoted := make([]string, 0, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(ext))
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("no image extensions configured")
	}
	image, err := regexp.Compile("(?i)(" + strings.Join(quoted, "|") + ")")
	if err != nil {
		return nil, fmt.Errorf("compile extensions: %w", err)
	}

	return &Scanner{fs: opts.Fs, pattern: opts.Pattern, image: image}, nil
}

// Match reports whether the base name of path matches the pattern.
func (s *Scanner) Match(path string) bool {
	matched, err := filepath.Match(s.pattern, filepath.Base(path))
	return err == nil && matched
}

// IsImageLine reports whether line mentions an image extension anywhere.
func (s *Scanner) IsImageLine(line string) bool {
	return s.image.MatchString(line)
}

// Scan reads path line by line and calls fn, in file order, for every
// trimmed line that mentions an image. An error from fn stops the scan and
// is returned as is.
func (s *Scanner) Scan(ctx context.Context, path string, fn func(Line) error) error {
	f, err := s.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	number := 0
	for {
		raw, readErr := r.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("read %s: %w", path, readErr)
		}
		if raw == "" && readErr == io.EOF {
			break
		}
		number++
		if number%256 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		text := strings.TrimSpace(raw)
		if s.IsImageLine(text) {
			if err := fn(Line{File: path, Number: number, Text: text}); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
	}
	return nil
}
