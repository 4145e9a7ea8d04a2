package taxonomy

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for lookups against slugs absent from a valid tree.
// Lookup helpers wrap it with the offending slug; match with errors.Is.
var ErrNotFound = errors.New("ingredient not found")

// ConstructionErrorKind classifies why a tree build was aborted.
type ConstructionErrorKind string

// Construction failure kinds. All of them abort the build.
const (
	DuplicateSlug      ConstructionErrorKind = "duplicate_slug"
	UnresolvableParent ConstructionErrorKind = "unresolvable_parent"
	InvalidRecord      ConstructionErrorKind = "invalid_record"
)

// ConstructionError reports a data integrity violation in the source records.
type ConstructionError struct {
	Kind   ConstructionErrorKind
	Slug   string
	Reason string
}

func (e *ConstructionError) Error() string {
	switch e.Kind {
	case DuplicateSlug:
		return fmt.Sprintf("build ingredient tree: duplicate slug %q", e.Slug)
	case UnresolvableParent:
		return fmt.Sprintf("build ingredient tree: unresolvable parent for %q (%s)", e.Slug, e.Reason)
	default:
		return fmt.Sprintf("build ingredient tree: invalid record %q: %s", e.Slug, e.Reason)
	}
}

// Is matches another *ConstructionError whose non-empty fields agree, so
// errors.Is(err, &ConstructionError{Kind: DuplicateSlug}) works.
func (e *ConstructionError) Is(target error) bool {
	t, ok := target.(*ConstructionError)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Slug == "" || t.Slug == e.Slug
}

// AsConstructionError extracts a ConstructionError from err.
func AsConstructionError(err error) (*ConstructionError, bool) {
	var ce *ConstructionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func notFound(slug string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, slug)
}
