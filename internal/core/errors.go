package core

// errors.go defines the outcome taxonomy for record operations.
//
// Every rejected create, update or delete surfaces as a *Failure. The Kind
// says what went wrong, and Violations lists every field-level problem for
// validation and reference failures. Callers branch with errors.Is against
// the Err* sentinels or errors.As into *Failure.

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a rejected operation.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindReferenceNotFound
	KindDuplicateRecord
	KindCapacityExhausted
	KindStorageFailure
	KindNotFound
)

// String returns the stable name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindReferenceNotFound:
		return "reference_not_found"
	case KindDuplicateRecord:
		return "duplicate"
	case KindCapacityExhausted:
		return "capacity_exhausted"
	case KindStorageFailure:
		return "storage_failure"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinels matched by (*Failure).Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrReferenceNotFound = errors.New("referenced record not found")
	ErrDuplicateRecord   = errors.New("record already exists")
	ErrCapacityExhausted = errors.New("identifier space exhausted")
	ErrStorageFailure    = errors.New("storage failure")
	ErrNotFound          = errors.New("record not found")
)

// Causes reported by Store implementations. The assembler wraps them into
// a Failure; they remain reachable through errors.Is.
var (
	// ErrConflict is a unique or primary key violation.
	ErrConflict = errors.New("unique constraint conflict")

	// ErrForeignKey is a foreign key violation: a missing parent on insert
	// or a parent still referenced on delete.
	ErrForeignKey = errors.New("foreign key violation")

	// ErrReferenceInUse marks a delete rejected because children still
	// reference the record.
	ErrReferenceInUse = errors.New("record is still referenced")
)

// Reason is a machine-checkable code attached to a ValidationError.
type Reason string

const (
	ReasonOutOfRange       Reason = "out_of_range"
	ReasonInvalidTemporal  Reason = "invalid_temporal"
	ReasonTooLong          Reason = "too_long"
	ReasonMalformed        Reason = "malformed"
	ReasonMissingReference Reason = "missing_reference"
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Failure is the typed outcome of a rejected operation.
type Failure struct {
	Kind   Kind
	Entity Entity
	// Key is the identifier involved, when one was known (the computed
	// crash id on a duplicate, the allocated id on a conflict).
	Key        string
	Violations []ValidationError
	// Conflict marks a storage failure caused by a concurrent allocation
	// of the same sequential id. Retrying the whole operation may succeed.
	Conflict bool
	Err      error
}

func (f *Failure) Error() string {
	var b strings.Builder
	if f.Entity != "" {
		b.WriteString(string(f.Entity))
		b.WriteString(": ")
	}
	b.WriteString(f.sentinel().Error())
	if f.Key != "" {
		fmt.Fprintf(&b, " (%s)", f.Key)
	}
	if len(f.Violations) > 0 {
		msgs := make([]string, len(f.Violations))
		for i, v := range f.Violations {
			msgs[i] = v.Error()
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(msgs, "; "))
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// Is reports whether target is the sentinel for this failure's kind.
func (f *Failure) Is(target error) bool {
	return target == f.sentinel()
}

func (f *Failure) sentinel() error {
	switch f.Kind {
	case KindValidation:
		return ErrValidation
	case KindReferenceNotFound:
		return ErrReferenceNotFound
	case KindDuplicateRecord:
		return ErrDuplicateRecord
	case KindCapacityExhausted:
		return ErrCapacityExhausted
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrStorageFailure
	}
}

// AsFailure extracts a *Failure from err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func validationFailure(entity Entity, violations []ValidationError) *Failure {
	return &Failure{Kind: KindValidation, Entity: entity, Violations: violations}
}

// storageFailure wraps err unless it already carries a Failure.
func storageFailure(entity Entity, key string, err error) error {
	if _, ok := AsFailure(err); ok {
		return err
	}
	return &Failure{
		Kind:     KindStorageFailure,
		Entity:   entity,
		Key:      key,
		Conflict: errors.Is(err, ErrConflict),
		Err:      err,
	}
}
