package entity

import "errors"

// Descriptor and schema validation errors.
var (
	ErrEmptyName              = errors.New("name must not be empty")
	ErrNoFields               = errors.New("descriptor has no fields")
	ErrNoPrimaryKey           = errors.New("descriptor has no primary-key field")
	ErrDuplicateField         = errors.New("duplicate field name")
	ErrDuplicateRelationship  = errors.New("duplicate relationship name")
	ErrIncompleteRelationship = errors.New("relationship missing target or foreign key")
	ErrUnknownEntity          = errors.New("unknown entity type")
	ErrDuplicateEntity        = errors.New("entity type already registered")
	ErrSchemaFrozen           = errors.New("schema is frozen")
	ErrSchemaNotFrozen        = errors.New("schema is not frozen")
	ErrUnknownField           = errors.New("unknown field")
	ErrUnknownRelationship    = errors.New("unknown relationship")
	ErrWrongCardinality       = errors.New("relationship has the wrong cardinality")
)

// Record and value errors.
var (
	ErrTypeMismatch = errors.New("value does not match field kind")
	ErrNullValue    = errors.New("field is not nullable")
	ErrMissingKey   = errors.New("record has no primary-key value")
	ErrNotFound     = errors.New("entity not found")
)

// Unit-of-work errors. The session package wraps these with typed
// errors carrying the offending entity and key.
var (
	ErrDuplicateIdentity = errors.New("duplicate identity for key")
	ErrCyclicDependency  = errors.New("cyclic dependency between pending entities")
	ErrSessionClosed     = errors.New("session is closed")
	ErrNotManaged        = errors.New("record is not managed by this session")
	ErrWrongState        = errors.New("record is in the wrong lifecycle state")
)
