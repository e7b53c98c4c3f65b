package entities

import "errors"

// Core error taxonomy. Layers wrap these with context via fmt.Errorf("%w")
// and callers classify with errors.Is.
var (
	// ErrNotFound indicates an Entity, Property, Row or Relationship is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidValue indicates a payload that does not match its Property
	// type, or malformed numeric/date/boolean input.
	ErrInvalidValue = errors.New("invalid value")

	// ErrPermissionDenied indicates the resolved access level is insufficient
	// for the requested operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrSchemaNotLoaded indicates the schema registry was accessed before
	// its first load completed. This is a programming-contract violation.
	ErrSchemaNotLoaded = errors.New("schema not loaded")

	// ErrConflictingRelationship indicates an attach/detach through a
	// relationship that is not declared between the two entities.
	ErrConflictingRelationship = errors.New("conflicting relationship")

	// ErrInvalidFilter indicates a filter condition referencing a
	// non-filterable property or an operator unsupported for its type.
	ErrInvalidFilter = errors.New("invalid filter")
)
