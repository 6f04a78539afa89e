// Package rqgerr defines the error taxonomy from spec.md §7: errors are
// classified by kind, not by a parallel type hierarchy per call site.
// Every exported sentinel is a plain value created with
// github.com/cockroachdb/errors, the teacher's own error-handling
// dependency; callers classify with errors.Is/errors.As against these
// sentinels rather than type-switching on package-private types.
package rqgerr

import "github.com/cockroachdb/errors"

// Sentinels for the seven error kinds of spec.md §7, plus ErrCheckpoint
// for a corrupt checkpoint file. Each is wrapped
// with call-site context via errors.Wrapf before it leaves the
// component that detected it.
var (
	// ErrGrammar marks a GrammarError: unknown rule reference, invalid
	// Choice, invalid Repeat, invalid Template. Detected at freeze;
	// fatal.
	ErrGrammar = errors.New("grammar error")

	// ErrExpansion marks an ExpansionError: a Lambda raised. Per-query,
	// non-fatal; the worker logs it and continues with the next index.
	ErrExpansion = errors.New("expansion error")

	// ErrSchema marks a SchemaError: DDL parse or introspection
	// failure. Fatal before a run starts; degrades to an empty
	// SchemaView with a warning if it occurs mid-run.
	ErrSchema = errors.New("schema error")

	// ErrUniquenessCollision marks exceeding the uniqueness retry cap.
	// Non-fatal; counted as a collision.
	ErrUniquenessCollision = errors.New("uniqueness collision")

	// ErrSQL marks a SqlError: the endpoint rejected a well-formed
	// statement (syntax, constraint, type). Not retried.
	ErrSQL = errors.New("sql error")

	// ErrConn marks a ConnError: a transport failure. Retried with
	// backoff; exhaustion is fatal to the run (exit code 2).
	ErrConn = errors.New("connection error")

	// ErrCancelled marks a run stopped by the cooperative stop flag or
	// its escalation to a forced close.
	ErrCancelled = errors.New("cancelled")

	// ErrCheckpoint marks a checkpoint file that can't be parsed or is
	// internally inconsistent (e.g. a done-watermark count that
	// doesn't match its recorded worker count). Fatal to a resume
	// attempt; maps to exit code 4 (spec.md §6.4).
	ErrCheckpoint = errors.New("checkpoint corruption")
)

// ConfigError collects every configuration violation found by
// RunConfig.Validate, rather than stopping at the first one — the
// teacher's own validation code prefers reporting a full diagnostic
// batch over one-at-a-time failures.
type ConfigError struct {
	Violations []string
}

func (e *ConfigError) Error() string {
	msg := "invalid run configuration:"
	for _, v := range e.Violations {
		msg += "\n  - " + v
	}
	return msg
}

// Is reports whether target is ErrGrammar, so configuration errors are
// classifiable alongside other fatal-at-freeze errors.
func (e *ConfigError) Is(target error) bool {
	return target == ErrGrammar
}

// SQLErrorClass is a normalized classification of a SqlError, coarser
// than a raw SQLSTATE code but finer than "sql error" — used by the
// Reporter to bucket error counts by kind (spec.md §4.9 "Statistics").
type SQLErrorClass string

const (
	SQLClassSyntax           SQLErrorClass = "syntax"
	SQLClassConstraint       SQLErrorClass = "constraint"
	SQLClassType             SQLErrorClass = "type"
	SQLClassSerialization    SQLErrorClass = "serialization_failure"
	SQLClassInsufficientPriv SQLErrorClass = "insufficient_privilege"
	SQLClassUndefined        SQLErrorClass = "undefined_object"
	SQLClassOther            SQLErrorClass = "other"
)

// sqlClassError attaches a SQLErrorClass to a wrapped ErrSQL cause. It
// implements Unwrap so errors.As/errors.Is see through it to both the
// original driver error and the ErrSQL sentinel.
type sqlClassError struct {
	cause error
	class SQLErrorClass
}

func (e *sqlClassError) Error() string { return e.cause.Error() }
func (e *sqlClassError) Unwrap() error { return e.cause }
func (e *sqlClassError) Is(target error) bool { return target == ErrSQL }

// NewSQLError wraps cause as an ErrSQL tagged with class, retrievable
// later via ClassOf.
func NewSQLError(cause error, class SQLErrorClass) error {
	return &sqlClassError{cause: errors.Wrapf(cause, "sql error"), class: class}
}

// ClassOf extracts the SQLErrorClass attached by NewSQLError, or
// SQLClassOther if err was not produced by NewSQLError.
func ClassOf(err error) SQLErrorClass {
	var e *sqlClassError
	if errors.As(err, &e) {
		return e.class
	}
	return SQLClassOther
}
