// Package ingest turns a directory of source documents into indexed chunks.
package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"dossier/internal/logging"
)

// PageBreak separates pages inside plain-text exports.
const PageBreak = "\f"

// Page is one page of a loaded document. Number is zero-based.
type Page struct {
	Document string
	Number   int
	Text     string
}

// Supported reports whether the loader understands path's extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md", ".html", ".htm":
		return true
	}
	return false
}

// DocumentName is the file stem used as the citation name.
func DocumentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadDir loads every supported file under dir in lexical path order.
func LoadDir(dir string) ([]Page, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var pages []Page
	for _, f := range files {
		p, err := LoadFile(f)
		if err != nil {
			logging.IngestWarn("Skipping %s: %v", f, err)
			continue
		}
		pages = append(pages, p...)
	}
	logging.Ingest("Loaded %d pages from %d files in %s", len(pages), len(files), dir)
	return pages, nil
}

// LoadFile reads one document and splits it into pages. PDF pages come
// from the file's own page tree; text formats split on PageBreak.
func LoadFile(path string) ([]Page, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return loadPDF(path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := string(raw)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text, err = htmlToText(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse html: %w", err)
		}
	case ".txt", ".md":
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}

	name := DocumentName(path)
	var pages []Page
	for n, body := range strings.Split(text, PageBreak) {
		if blank(body) {
			continue
		}
		pages = append(pages, Page{Document: name, Number: n, Text: body})
	}
	return pages, nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func htmlToText(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	writeText(doc, &sb, 0)
	pages := strings.Split(sb.String(), PageBreak)
	for i, p := range pages {
		pages[i] = collapseBlankLines(p)
	}
	return strings.Join(pages, PageBreak), nil
}

func writeText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 64 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer":
			return
		case "title", "h1", "h2", "h3", "h4", "h5", "h6", "p", "div", "section", "table", "tr":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		case "hr":
			// Explicit page breaks survive HTML conversion.
			if hasClass(n, "page-break") {
				sb.WriteString(PageBreak)
				return
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "title", "h1", "h2", "h3", "h4", "h5", "h6", "p":
			sb.WriteString("\n\n")
		}
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			line = ""
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
