package packages

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/epicbuild/epic/pkg/engine"
)

// HeaderTimeLayout is the timestamp format of the generated header banner.
const HeaderTimeLayout = "2006/01/02 15:04:05"

// HeaderName returns the aggregate header file name, <name>.h.
func (p *Package) HeaderName() string {
	return p.Name() + ".h"
}

// RenderHeader returns the aggregate header text: a banner stamped with now
// (in UTC) and one #include per other root-level header.
func (p *Package) RenderHeader(now time.Time) (string, error) {
	headers, err := p.Headers()
	if err != nil {
		return "", err
	}

	lines := []string{
		"/* Automatic package header from epic",
		"   Generated " + now.UTC().Format(HeaderTimeLayout),
		"*/",
		"",
	}
	own := p.HeaderName()
	for _, h := range headers {
		if h == own {
			continue
		}
		lines = append(lines, fmt.Sprintf("#include %q", h))
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n"), nil
}

// BuildHeader writes the aggregate header into the package root,
// overwriting any previous one, and returns its path.
func (p *Package) BuildHeader(now time.Time) (string, error) {
	text, err := p.RenderHeader(now)
	if err != nil {
		return "", err
	}
	path := filepath.Join(p.dir, p.HeaderName())
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", engine.NewIOError("write package header", err)
	}
	return path, nil
}
