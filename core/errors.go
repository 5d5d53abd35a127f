package core

import (
	"errors"
	"fmt"
)

// PreprocessError indicates malformed structured conversation input.
// Plain raw text never produces it.
type PreprocessError struct {
	Detail string
}

func (e *PreprocessError) Error() string {
	return fmt.Sprintf("preprocess: %s", e.Detail)
}

// SimilarityError indicates the vector index was unreachable or returned
// an unusable response.
type SimilarityError struct {
	Err error
}

func (e *SimilarityError) Error() string {
	return fmt.Sprintf("similarity: %v", e.Err)
}

func (e *SimilarityError) Unwrap() error { return e.Err }

// StorageError indicates a failed write intent against the storage engine.
type StorageError struct {
	Op  string // add, update, get
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigError indicates an invalid per-call configuration. It is
// validated once at pipeline-call entry and fails the entire call,
// since it signals a caller bug rather than a data problem.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Detail)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
