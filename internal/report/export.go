package report

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
)

// HTMLExporter writes summaries as standalone HTML documents into Dir.
type HTMLExporter struct {
	Dir string
	Now func() time.Time
}

func NewHTMLExporter(dir string) *HTMLExporter {
	return &HTMLExporter{Dir: dir, Now: time.Now}
}

// Export renders s and returns the path of the written file.
func (e *HTMLExporter) Export(s Summary) (string, error) {
	doc, err := RenderHTML(s)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	name := fmt.Sprintf("summary-%s-%s.html", sanitize(s.PatientID), now().Format("20060102-150405"))
	path := filepath.Join(e.Dir, name)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// RenderHTML converts the summary markdown into an HTML page.
func RenderHTML(s Summary) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.New().Convert([]byte(s.Markdown()), &body); err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>Consultation Summary %s</title>\n", html.EscapeString(s.PatientID))
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
