package types

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrEmptyName         = errors.New("name cannot be empty")
	ErrEmptyGroupID      = errors.New("group_id cannot be empty")
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrEmptyRelationName = errors.New("relation name cannot be empty")
	ErrMissingEndpoint   = errors.New("edge endpoints cannot be empty")
)

// ErrTransientBackend marks errors from the embedding, judgment, or store
// backends that are worth retrying with backoff. After retries are exhausted
// the caller degrades to its conservative fallback instead of failing the
// batch.
var ErrTransientBackend = errors.New("transient backend error")

// ErrNodeNotFound is returned by store point lookups for unknown identities.
var ErrNodeNotFound = errors.New("node not found")

// ErrNodeRetired is returned when an operation targets a node that has
// already been absorbed into a canonical node.
var ErrNodeRetired = errors.New("node is retired")

// DataIntegrityError reports a graph inconsistency the engine refuses to
// paper over: an edge pointing at a retired or missing node, or an identity
// collision across distinct inputs. The offending item is skipped and
// reported, never silently merged.
type DataIntegrityError struct {
	Uuid   string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation for %s: %s", e.Uuid, e.Reason)
}

// Is lets errors.Is match any DataIntegrityError regardless of payload.
func (e *DataIntegrityError) Is(target error) bool {
	_, ok := target.(*DataIntegrityError)
	return ok
}

// ConfigurationError is fatal at startup, never per-item.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %s", e.Field, e.Message)
}

// Is lets errors.Is match any ConfigurationError regardless of payload.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}
