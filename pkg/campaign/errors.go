package campaign

import (
	"errors"
	"fmt"
)

// Per-item failures fall into four classes with distinct retry semantics:
// validation and not-found failures are permanent for the item, transient
// failures are retried on the next invocation, repository failures abort the
// item before any side effect is attempted. None of them ever abort a batch.

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository failure in %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether the item should be skipped without retry.
func IsPermanent(err error) bool {
	var validation *ValidationError
	var notFound *NotFoundError
	return errors.As(err, &validation) || errors.As(err, &notFound)
}

// IsTransient reports whether a later invocation should retry the item.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
