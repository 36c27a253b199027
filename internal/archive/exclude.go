package archive

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/raoulx24/dir-archiver/internal/apperr"
	"github.com/raoulx24/dir-archiver/internal/fsprobe"
)

// Matcher decides which source entries are left out of an archive. Patterns
// use doublestar syntax and are tried against the slash-separated path
// relative to the source root and against the base name, so ".cache" and
// "*.tmp" behave like tar --exclude while "build/**/out" can anchor. The
// fsnotify probe's scratch directory is always excluded.
type Matcher struct {
	patterns []string
}

func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{patterns: []string{fsprobe.ScratchPattern}}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(strings.TrimSuffix(p, "/"), "./")
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: bad exclude pattern %q", apperr.ErrInvalidArguments, p)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Excluded reports whether rel (slash-separated, relative to the source
// root) matches any pattern.
func (m *Matcher) Excluded(rel string) bool {
	if m == nil || rel == "." || rel == "" {
		return false
	}
	base := path.Base(rel)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}
