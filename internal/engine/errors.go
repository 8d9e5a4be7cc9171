package engine

import (
	"errors"
	"fmt"

	"recruitline/internal/domain"
	"recruitline/internal/engine/auth"
	"recruitline/internal/repo"
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PreconditionError reports a well-formed request the current state does not allow yet.
type PreconditionError struct {
	Message string
}

func (e PreconditionError) Error() string { return e.Message }

// PermissionError wraps a failed capability check.
type PermissionError struct {
	Err auth.ForbiddenError
}

func (e PermissionError) Error() string { return e.Err.Error() }
func (e PermissionError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError reports a transition that is not legal from the current state.
type ConflictError struct {
	Message string
	Err     error
}

func (e ConflictError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e ConflictError) Unwrap() error { return e.Err }

// ExternalServiceError reports a collaborator failure.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e ExternalServiceError) Unwrap() error { return e.Err }

func notFound(entity, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError{Entity: entity, ID: id}
	}
	return err
}

func conflict(err error) error {
	var te domain.TransitionError
	if errors.As(err, &te) {
		return ConflictError{Message: te.Error(), Err: err}
	}
	return err
}

func permission(err error) error {
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return PermissionError{Err: fe}
	}
	return err
}
