package mdv

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Goldmark implements Validator on top of the goldmark parser. It holds no
// per-call state, so one instance can serve every goroutine.
type Goldmark struct {
	logger *zap.Logger

	htmlAnchor *regexp.Regexp
	htmlImage  *regexp.Regexp
	htmlAlt    *regexp.Regexp
}

// NewGoldmark builds a validator that logs debug reports to logger.
func NewGoldmark(logger *zap.Logger) *Goldmark {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Goldmark{
		logger:     logger,
		htmlAnchor: regexp.MustCompile(`(?i)<a\s[^>]*?\b(?:name|id)\s*=\s*(?:"([^"]*)"|'([^']*)')`),
		htmlImage:  regexp.MustCompile(`(?i)<img\b[^>]*>`),
		htmlAlt:    regexp.MustCompile(`(?i)\balt\s*=\s*(?:"([^"]*)"|'([^']*)')`),
	}
}

// newEngine builds a goldmark.Markdown per call; parser state stays local.
func newEngine() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.GFM))
}

// findings accumulates what one document defines and references.
type findings struct {
	defined    map[string]int
	order      []string
	references []string
	report     Report
}

func (f *findings) define(anchor string) {
	if f.defined[anchor] == 0 {
		f.order = append(f.order, anchor)
	}
	f.defined[anchor]++
}

// Validate parses text and reports missing alt text and anchor problems.
func (g *Goldmark) Validate(input string, opts Options) Report {
	src := []byte(input)
	doc := newEngine().Parser().Parse(text.NewReader(src))

	f := &findings{defined: map[string]int{}}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if slug := slugify(plainText(node, src)); slug != "" {
				f.define(slug)
			}
		case *ast.Image:
			if strings.TrimSpace(plainText(node, src)) == "" {
				f.report.ImagesWithMissingAlt++
			}
		case *ast.Link:
			g.checkLink(f, node, src)
		case *ast.RawHTML:
			var b strings.Builder
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				b.Write(seg.Value(src))
			}
			g.checkHTML(f, b.String())
		case *ast.HTMLBlock:
			var b strings.Builder
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			if node.HasClosure() {
				b.Write(node.ClosureLine.Value(src))
			}
			g.checkHTML(f, b.String())
		}
		return ast.WalkContinue, nil
	})

	for _, anchor := range f.order {
		if f.defined[anchor] > 1 {
			f.report.DuplicatedAnchors = append(f.report.DuplicatedAnchors, anchor)
		}
	}
	for _, ref := range f.references {
		if f.defined[ref] == 0 && f.defined[strings.ToLower(ref)] == 0 {
			f.report.MissingAnchors = append(f.report.MissingAnchors, "#"+ref)
		}
	}

	if opts.Debug {
		logReport(g.logger, input, f.report)
	}
	return f.report
}

func (g *Goldmark) checkLink(f *findings, link *ast.Link, src []byte) {
	dest := string(link.Destination)

	if strings.HasPrefix(dest, "#") {
		if emptyLabel(link, src) {
			f.report.AnchorsWithEmptyText = append(f.report.AnchorsWithEmptyText, dest)
		}
		fragment := dest[1:]
		if unescaped, err := url.PathUnescape(fragment); err == nil {
			fragment = unescaped
		}
		f.references = append(f.references, norm.NFC.String(fragment))
		return
	}

	if isBareLocalRef(dest) {
		f.report.LocalRefNoHash = append(f.report.LocalRefNoHash, dest)
	}
}

func (g *Goldmark) checkHTML(f *findings, html string) {
	for _, m := range g.htmlAnchor.FindAllStringSubmatch(html, -1) {
		name := m[1] + m[2]
		if strings.HasPrefix(name, "#") {
			f.report.AnchorsWithHash = append(f.report.AnchorsWithHash, name)
		}
		f.define(norm.NFC.String(name))
	}
	for _, tag := range g.htmlImage.FindAllString(html, -1) {
		m := g.htmlAlt.FindStringSubmatch(tag)
		if m == nil || strings.TrimSpace(m[1]+m[2]) == "" {
			f.report.ImagesWithMissingAlt++
		}
	}
}

// isBareLocalRef matches destinations that look like an anchor name that
// lost its leading '#': no scheme, path, extension or query.
func isBareLocalRef(dest string) bool {
	if dest == "" {
		return false
	}
	return !strings.ContainsAny(dest, "#:/.?")
}

// emptyLabel reports whether a link has neither text nor an image inside it.
func emptyLabel(link *ast.Link, src []byte) bool {
	if strings.TrimSpace(plainText(link, src)) != "" {
		return false
	}
	for c := link.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Kind() == ast.KindImage {
			return false
		}
	}
	return true
}

// plainText concatenates the text below n.
func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(plainText(c, src))
		}
	}
	return b.String()
}

// slugify turns heading text into a GitHub style anchor.
func slugify(s string) string {
	s = norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('-')
		}
	}
	return b.String()
}
