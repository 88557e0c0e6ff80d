package fs

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportPage is one page prepared for markdown export.
type ExportPage struct {
	URL       string
	Title     string
	Markdown  string
	FetchedAt time.Time
}

// ExportWriter writes a docset's pages as markdown files with atomic
// replace semantics: pages are saved to a temporary directory, then
// moved into place on Commit.
type ExportWriter struct {
	baseDir string
	name    string
}

// NewExportWriter creates a writer for one docset export. baseDir is the
// export root, name the docset directory name. Files are saved to
// baseDir/name.tmp and moved to baseDir/name on Commit.
func NewExportWriter(baseDir, name string) *ExportWriter {
	return &ExportWriter{
		baseDir: baseDir,
		name:    sanitizeName(name),
	}
}

func (w *ExportWriter) tempDir() string {
	return filepath.Join(w.baseDir, w.name+".tmp")
}

func (w *ExportWriter) finalDir() string {
	return filepath.Join(w.baseDir, w.name)
}

// Save writes one page under the temporary directory.
func (w *ExportWriter) Save(page *ExportPage) error {
	relPath, err := urlToPath(page.URL)
	if err != nil {
		return err
	}

	fullPath := filepath.Join(w.tempDir(), relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}

	return os.WriteFile(fullPath, []byte(formatExport(page)), 0o644)
}

// Commit atomically replaces the final directory with the temporary one.
func (w *ExportWriter) Commit() error {
	if err := os.RemoveAll(w.finalDir()); err != nil {
		return err
	}
	return os.Rename(w.tempDir(), w.finalDir())
}

// Abort discards the temporary directory.
func (w *ExportWriter) Abort() error {
	return os.RemoveAll(w.tempDir())
}

// urlToPath converts a page URL to a relative markdown file path.
// https://example.com/docs/api/users → docs/api/users.md
func urlToPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	p := u.Path
	if p == "" || p == "/" {
		return "index.md", nil
	}
	p = strings.TrimPrefix(p, "/")
	if strings.HasSuffix(p, "/") {
		return p + "index.md", nil
	}
	return p + ".md", nil
}

// formatExport renders a page with YAML frontmatter.
func formatExport(page *ExportPage) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("source: ")
	b.WriteString(page.URL)
	b.WriteString("\ntitle: ")
	b.WriteString(page.Title)
	b.WriteString("\nfetched: ")
	b.WriteString(page.FetchedAt.Format("2006-01-02"))
	b.WriteString("\n---\n\n")
	b.WriteString(page.Markdown)
	return b.String()
}
