package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillet/pkg/logger"
)

// Builder walks skill roots and produces validated immutable indexes.
// Root order is precedence order: when the same identifier appears in
// two roots, the earlier root's document wins.
type Builder struct {
	roots []string
	allow []glob.Glob
	deny  []glob.Glob
}

// Option is a function that configures a Builder
type Option func(*Builder) error

// WithRoots sets the catalog roots. Entries may be literal directories
// or doublestar glob patterns (e.g. "vendor/*/skills").
func WithRoots(roots ...string) Option {
	return func(b *Builder) error {
		b.roots = roots
		return nil
	}
}

// WithDefaultRoots initializes the conventional roots: the repo-local
// catalog first (highest precedence), then the user-global one.
func WithDefaultRoots() Option {
	return func(b *Builder) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		b.roots = []string{
			"./.skillet/skills",
			filepath.Join(homeDir, ".skillet", "skills"),
		}
		return nil
	}
}

// WithAllowPatterns keeps only skills whose identifier matches one of
// the given glob patterns. An empty list keeps everything.
func WithAllowPatterns(patterns ...string) Option {
	return func(b *Builder) error {
		compiled, err := compilePatterns(patterns)
		if err != nil {
			return err
		}
		b.allow = compiled
		return nil
	}
}

// WithDenyPatterns excludes skills whose identifier matches one of the
// given glob patterns. Deny wins over allow.
func WithDenyPatterns(patterns ...string) Option {
	return func(b *Builder) error {
		compiled, err := compilePatterns(patterns)
		if err != nil {
			return err
		}
		b.deny = compiled
		return nil
	}
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid skill pattern %q", p)
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

// NewBuilder creates a catalog builder. Without options it uses the
// default roots.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{}

	if len(opts) == 0 {
		if err := WithDefaultRoots()(b); err != nil {
			return nil, err
		}
	} else {
		for _, opt := range opts {
			if err := opt(b); err != nil {
				return nil, err
			}
		}
	}

	return b, nil
}

// Build parses every skill under the configured roots and returns a new
// immutable Index. It fails with *CatalogError when any document is
// malformed: a missing trigger clause, an invalid identifier or
// category, a dangling reference path, or a duplicate identifier within
// one root. The error aggregates every failing document. Build never
// publishes anything itself; pass the result to a Store to make it
// visible.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	log := logger.G(ctx)

	type origin struct {
		rootIdx int
		path    string
	}

	docs := make(map[string]*SkillDocument)
	origins := make(map[string]origin)
	var merr *multierror.Error

	for rootIdx, root := range expandRoots(b.roots) {
		for _, skillPath := range findSkillFiles(root) {
			doc, err := parseSkillFile(skillPath)
			if err != nil {
				merr = multierror.Append(merr, errors.Wrapf(err, "skill at %s", skillPath))
				continue
			}

			if !b.allowed(doc.ID) {
				log.WithField("skill", doc.ID).Debug("skill excluded by allow/deny patterns")
				continue
			}

			if prev, exists := origins[doc.ID]; exists {
				if prev.rootIdx == rootIdx {
					merr = multierror.Append(merr, errors.Errorf(
						"duplicate skill identifier %q at %s (already defined at %s)",
						doc.ID, skillPath, prev.path))
				} else {
					log.WithFields(map[string]interface{}{
						"skill":    doc.ID,
						"shadowed": skillPath,
						"active":   prev.path,
					}).Debug("skill shadowed by higher-precedence root")
				}
				continue
			}

			origins[doc.ID] = origin{rootIdx: rootIdx, path: skillPath}
			docs[doc.ID] = doc
		}
	}

	if merr != nil {
		return nil, newCatalogError(merr)
	}

	log.WithField("skills", len(docs)).Debug("catalog built")
	return newIndex(docs), nil
}

func (b *Builder) allowed(id string) bool {
	for _, g := range b.deny {
		if g.Match(id) {
			return false
		}
	}
	if len(b.allow) == 0 {
		return true
	}
	for _, g := range b.allow {
		if g.Match(id) {
			return true
		}
	}
	return false
}

// expandRoots resolves glob roots to concrete directories, preserving
// configuration order. Roots that match nothing are skipped.
func expandRoots(roots []string) []string {
	var expanded []string
	seen := make(map[string]bool)

	for _, root := range roots {
		matches, err := doublestar.FilepathGlob(root)
		if err != nil || len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				continue
			}
			if !seen[m] {
				seen[m] = true
				expanded = append(expanded, m)
			}
		}
	}

	return expanded
}

// findSkillFiles returns every SKILL.md under root in lexical order,
// skipping VCS and dependency directories.
func findSkillFiles(root string) []string {
	var files []string

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" || (strings.HasPrefix(name, ".") && path != root) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == skillFileName {
			files = append(files, path)
		}
		return nil
	})

	return files
}
