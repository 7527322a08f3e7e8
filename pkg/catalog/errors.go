package catalog

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// errNotInCatalog marks lookups of skills or references the current
// index does not know about.
var errNotInCatalog = errors.New("not present in the catalog")

// CatalogError reports every malformed skill document found during a
// build. The build publishes no index when it fails: a catalog is either
// fully valid or absent.
type CatalogError struct {
	err *multierror.Error
}

func newCatalogError(err *multierror.Error) *CatalogError {
	return &CatalogError{err: err}
}

// Error lists each failing document with its reason.
func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog build failed: %s", e.err.Error())
}

// Unwrap exposes the aggregated failures for errors.Is/As.
func (e *CatalogError) Unwrap() error {
	return e.err
}

// Failures returns the per-document validation errors.
func (e *CatalogError) Failures() []error {
	return e.err.Errors
}

// ReferenceResolutionError indicates a declared reference file could not
// be read when its content was first needed. Recoverable: the reference
// is omitted from the plan and the turn proceeds.
type ReferenceResolutionError struct {
	SkillID string
	Name    string
	Path    string
	Err     error
}

func (e *ReferenceResolutionError) Error() string {
	return fmt.Sprintf("skill %s: reference %q (%s) could not be resolved: %v", e.SkillID, e.Name, e.Path, e.Err)
}

func (e *ReferenceResolutionError) Unwrap() error {
	return e.Err
}
