package catalog

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Metadata is the YAML frontmatter shape of a SKILL.md file
type Metadata struct {
	Name        string   `yaml:"name" mapstructure:"name"`
	Description string   `yaml:"description" mapstructure:"description"`
	Tags        []string `yaml:"tags" mapstructure:"tags"`
	Category    string   `yaml:"category" mapstructure:"category"`
}

// clauseMarkers are the phrasings that make a sentence of the trigger
// description an explicit condition clause.
var clauseMarkers = []string{
	"use when",
	"use this when",
	"use this skill when",
	"use if",
	"when you need",
	"when the user",
	"invoke when",
}

// parseSkillFile loads and validates one SKILL.md. The returned document
// carries the stripped body, extracted trigger clauses, and the ordered
// reference list (declared body links first, then undeclared sidecars).
func parseSkillFile(path string) (*SkillDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))
	pctx := parser.NewContext()
	docNode := md.Parser().Parse(text.NewReader(content), parser.WithContext(pctx))

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, errors.New("missing frontmatter")
	}

	var m Metadata
	if err := mapstructure.Decode(metaData, &m); err != nil {
		return nil, errors.Wrap(err, "malformed frontmatter")
	}

	if err := validateSkillID(m.Name); err != nil {
		return nil, err
	}
	if m.Description == "" {
		return nil, errors.New("skill description is required in frontmatter")
	}

	category, err := ParseCategory(m.Category)
	if err != nil {
		return nil, err
	}

	clauses := extractClauses(m.Description)
	if len(clauses) == 0 {
		return nil, errors.Errorf("trigger description has no condition clause (expected e.g. %q)", clauseMarkers[0])
	}

	dir := filepath.Dir(path)
	body := extractBodyContent(string(content))

	references, err := collectReferences(docNode, content, dir)
	if err != nil {
		return nil, err
	}

	return &SkillDocument{
		ID:         m.Name,
		Trigger:    m.Description,
		Clauses:    clauses,
		Tags:       m.Tags,
		Category:   category,
		Tokens:     EstimateTokens([]byte(body)),
		Directory:  dir,
		Content:    body,
		References: references,
	}, nil
}

// validateSkillID enforces the identifier shape: 1-64 characters of
// lower-case letters, digits and single hyphens, no hyphen at either end.
func validateSkillID(id string) error {
	if id == "" {
		return errors.New("skill name is required in frontmatter")
	}
	if len(id) > 64 {
		return errors.Errorf("skill name %q exceeds 64 characters", id)
	}
	if strings.HasPrefix(id, "-") || strings.HasSuffix(id, "-") {
		return errors.Errorf("skill name %q must not start or end with a hyphen", id)
	}
	if strings.Contains(id, "--") {
		return errors.Errorf("skill name %q must not contain consecutive hyphens", id)
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return errors.Errorf("skill name %q may only contain lower-case letters, digits and hyphens", id)
		}
	}
	return nil
}

// extractClauses returns the sentences of the trigger description that
// contain an explicit condition phrasing.
func extractClauses(description string) []string {
	var clauses []string
	for _, sentence := range strings.FieldsFunc(description, func(r rune) bool {
		return r == '.' || r == ';' || r == '\n'
	}) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lowered := strings.ToLower(sentence)
		for _, marker := range clauseMarkers {
			if strings.Contains(lowered, marker) {
				clauses = append(clauses, sentence)
				break
			}
		}
	}
	return clauses
}

// collectReferences indexes the skill's sidecar documents. Body links
// mark a sidecar as declared progressive-disclosure content; a link to a
// path that does not exist (or escapes the skill directory) fails the
// document.
func collectReferences(docNode ast.Node, source []byte, dir string) ([]ReferenceFile, error) {
	sidecars, err := discoverSidecars(dir)
	if err != nil {
		return nil, err
	}

	var references []ReferenceFile
	declared := make(map[string]bool)

	var walkErr error
	_ = ast.Walk(docNode, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}

		dest := string(link.Destination)
		if !isRelativeLink(dest) {
			return ast.WalkContinue, nil
		}

		rel, err := normalizeRelPath(dest)
		if err != nil {
			walkErr = errors.Wrapf(err, "reference link %q", dest)
			return ast.WalkStop, nil
		}
		if declared[rel] {
			return ast.WalkContinue, nil
		}

		info, err := os.Stat(filepath.Join(dir, rel))
		if err != nil || info.IsDir() {
			walkErr = errors.Errorf("dangling reference path %q", dest)
			return ast.WalkStop, nil
		}

		name := linkText(link, source)
		if name == "" {
			name = fileStem(rel)
		}

		declared[rel] = true
		delete(sidecars, rel)
		references = append(references, ReferenceFile{
			Name:     name,
			Path:     rel,
			Tokens:   estimateTokensFromSize(info.Size()),
			Declared: true,
			Topics:   topicKeywords(name, rel),
		})
		return ast.WalkContinue, nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	// Undeclared sidecars follow in path order; they are indexed for
	// inspection but never auto-loaded.
	remaining := make([]string, 0, len(sidecars))
	for rel := range sidecars {
		remaining = append(remaining, rel)
	}
	sort.Strings(remaining)
	for _, rel := range remaining {
		references = append(references, ReferenceFile{
			Name:     fileStem(rel),
			Path:     rel,
			Tokens:   estimateTokensFromSize(sidecars[rel]),
			Declared: false,
			Topics:   topicKeywords("", rel),
		})
	}

	return references, nil
}

// discoverSidecars maps every markdown/text sidecar under the skill
// directory (relative path -> byte size), excluding SKILL.md itself.
func discoverSidecars(dir string) (map[string]int64, error) {
	sidecars := make(map[string]int64)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == skillFileName {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".md", ".markdown", ".txt":
		default:
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sidecars[filepath.ToSlash(rel)] = info.Size()
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan skill directory")
	}

	return sidecars, nil
}

// isRelativeLink reports whether a link destination points at a file
// within the skill directory tree rather than a URL or page anchor.
func isRelativeLink(dest string) bool {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") {
		return false
	}
	if strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:") {
		return false
	}
	return true
}

// normalizeRelPath cleans a link destination and rejects paths that
// escape the skill directory.
func normalizeRelPath(dest string) (string, error) {
	if idx := strings.IndexAny(dest, "#?"); idx >= 0 {
		dest = dest[:idx]
	}
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(dest)))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("path escapes the skill directory")
	}
	return cleaned, nil
}

// linkText concatenates the text nodes beneath a link
func linkText(link *ast.Link, source []byte) string {
	var sb strings.Builder
	for c := link.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(sb.String())
}

// fileStem returns the base name without extension
func fileStem(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// topicKeywords derives the lower-cased keyword set a reference is about
// from its link text and file stem.
func topicKeywords(name, rel string) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, source := range []string{name, fileStem(rel)} {
		for _, word := range splitWords(source) {
			if len(word) < 2 || seen[word] {
				continue
			}
			seen[word] = true
			topics = append(topics, word)
		}
	}
	return topics
}

// splitWords lower-cases and splits on any non-alphanumeric rune
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
}

// extractBodyContent removes YAML frontmatter and returns the body
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}

	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}
