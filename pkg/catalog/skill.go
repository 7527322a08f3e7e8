// Package catalog loads and indexes skill documents. A skill is a
// directory holding a SKILL.md file with YAML frontmatter (name,
// description, tags, category) and an instructional body, plus optional
// sidecar reference files the body links to for progressive disclosure.
// Build walks the configured roots, validates every document, and
// returns an immutable Index; Store publishes rebuilt indexes atomically
// so readers never observe a partial catalog.
package catalog

import (
	"sort"

	"github.com/pkg/errors"
)

const skillFileName = "SKILL.md"

// Category classifies a skill document
type Category string

const (
	// CategoryStack marks skills about a technology stack
	CategoryStack Category = "stack"
	// CategoryDomain marks skills about a problem domain
	CategoryDomain Category = "domain"
	// CategoryMeta marks skills about the assistant's own workflow
	CategoryMeta Category = "meta"
)

// Categories lists every valid category in display order
var Categories = []Category{CategoryStack, CategoryDomain, CategoryMeta}

// ParseCategory validates a frontmatter category value
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryStack, CategoryDomain, CategoryMeta:
		return Category(s), nil
	}
	return "", errors.Errorf("unknown category %q (expected stack, domain or meta)", s)
}

// ReferenceFile is a sidecar document belonging to a skill. Declared
// references are linked from the skill's main body and are candidates
// for progressive disclosure; undeclared sidecars are indexed but never
// auto-loaded.
type ReferenceFile struct {
	Name     string   // link text, or the file stem when undeclared
	Path     string   // path relative to the skill directory
	Tokens   int      // estimated token size
	Declared bool     // linked from the main body
	Topics   []string // lower-cased topic keywords from link text and file stem
}

// SkillDocument is one indexed skill. Constructed at build time from
// static files and immutable thereafter.
type SkillDocument struct {
	ID         string          // unique identifier from frontmatter name
	Trigger    string          // trigger description enumerating invocation conditions
	Clauses    []string        // condition clauses extracted from the trigger description
	Tags       []string        // ordered tags from frontmatter
	Category   Category        // stack, domain or meta
	Tokens     int             // estimated token size of the main body
	Directory  string          // skill directory on disk
	Content    string          // main body with frontmatter stripped
	References []ReferenceFile // ordered sidecar documents
}

// Reference returns the reference file at the given skill-relative
// path, if the skill has one. Paths are the unique key; link text is
// display-only and two references may share it.
func (d *SkillDocument) Reference(path string) (ReferenceFile, bool) {
	for _, ref := range d.References {
		if ref.Path == path {
			return ref, true
		}
	}
	return ReferenceFile{}, false
}

// DeclaredReferences returns the references linked from the main body,
// in body order.
func (d *SkillDocument) DeclaredReferences() []ReferenceFile {
	var declared []ReferenceFile
	for _, ref := range d.References {
		if ref.Declared {
			declared = append(declared, ref)
		}
	}
	return declared
}

// EstimateTokens approximates the token cost of content. Roughly four
// bytes per token for English prose and source code, which is accurate
// enough for whole-document budgeting.
func EstimateTokens(content []byte) int {
	return estimateTokensFromSize(int64(len(content)))
}

func estimateTokensFromSize(n int64) int {
	return int((n + 3) / 4)
}

func sortedIDs(docs map[string]*SkillDocument) []string {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
