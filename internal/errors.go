package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscussionNotFound is returned when a discussion has never been provisioned.
	ErrDiscussionNotFound = errors.New("discussion not found")

	// ErrInvalidDiscussionID is returned for identifiers not of the form discussion_<N>.
	ErrInvalidDiscussionID = errors.New("invalid discussion id")
)

// StoreError represents errors from the discussion store
type StoreError struct {
	Op         string // "create", "list", "append", "read", "delete", "provision"
	Discussion string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Discussion == "" {
		return fmt.Sprintf("store error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store error: %s %s: %v", e.Op, e.Discussion, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ExtractionError represents errors extracting text from an attachment
type ExtractionError struct {
	File string
	Type string // "pdf", "docx", ...
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error [%s] %s: %v", e.Type, e.File, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
