package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/jingkaihe/skillet/pkg/logger"
)

// Index is an immutable snapshot of the skill catalog. All reads are
// safe for concurrent use; a rebuild produces a fresh Index rather than
// mutating this one.
type Index struct {
	docs       map[string]*SkillDocument
	ids        []string
	generation uint64
	contents   *contentCache
}

func newIndex(docs map[string]*SkillDocument) *Index {
	return &Index{
		docs:     docs,
		ids:      sortedIDs(docs),
		contents: newContentCache(),
	}
}

// Lookup returns the document with the given identifier
func (i *Index) Lookup(id string) (*SkillDocument, bool) {
	doc, ok := i.docs[id]
	return doc, ok
}

// All returns every document in lexicographic identifier order
func (i *Index) All() []*SkillDocument {
	all := make([]*SkillDocument, 0, len(i.ids))
	for _, id := range i.ids {
		all = append(all, i.docs[id])
	}
	return all
}

// Len returns the number of indexed documents
func (i *Index) Len() int {
	return len(i.ids)
}

// Generation identifies which catalog swap produced this index. Plan
// caches key on it so a swap invalidates them.
func (i *Index) Generation() uint64 {
	return i.generation
}

// ReferenceContent returns the bytes of the skill's reference file at
// the given skill-relative path, reading from disk on first use and
// caching thereafter. Failures wrap *ReferenceResolutionError; callers
// omit the reference and continue.
func (i *Index) ReferenceContent(ctx context.Context, skillID, refPath string) (string, error) {
	doc, ok := i.Lookup(skillID)
	if !ok {
		return "", &ReferenceResolutionError{SkillID: skillID, Path: refPath, Err: errNotInCatalog}
	}
	ref, ok := doc.Reference(refPath)
	if !ok {
		return "", &ReferenceResolutionError{SkillID: skillID, Path: refPath, Err: errNotInCatalog}
	}

	key := skillID + "\x00" + ref.Path
	return i.contents.get(key, func() (string, error) {
		path := filepath.Join(doc.Directory, filepath.FromSlash(ref.Path))
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &ReferenceResolutionError{SkillID: skillID, Name: ref.Name, Path: ref.Path, Err: err}
		}
		logger.G(ctx).WithFields(map[string]interface{}{
			"skill":     skillID,
			"reference": ref.Path,
			"bytes":     len(data),
		}).Debug("reference content loaded")
		return string(data), nil
	})
}

// contentCache deduplicates concurrent loads of the same reference file.
// The first caller performs the read while later callers wait on it;
// failed loads are not cached so a later turn can retry.
type contentCache struct {
	mu      sync.Mutex
	entries map[string]*contentEntry
}

type contentEntry struct {
	done chan struct{}
	data string
	err  error
}

func newContentCache() *contentCache {
	return &contentCache{entries: make(map[string]*contentEntry)}
}

func (c *contentCache) get(key string, load func() (string, error)) (string, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		<-e.done
		return e.data, e.err
	}

	e := &contentEntry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	e.data, e.err = load()
	if e.err != nil {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
	}
	close(e.done)

	return e.data, e.err
}
