package session

import (
	"errors"
	"fmt"
)

// Code discriminates the fatal failure modes of the study-session
// operations. Raw storage and cache errors stay wrapped underneath; only the
// code crosses the boundary to callers.
type Code string

const (
	CodeDeckCreationFailed    Code = "deck_creation_failed"
	CodeChapterNotFound       Code = "chapter_not_found"
	CodeNoVocabulary          Code = "no_vocabulary"
	CodeInitializationFailed  Code = "initialization_failed"
	CodeCardRetrievalFailed   Code = "card_retrieval_failed"
	CodeSessionCreationFailed Code = "session_creation_failed"
	CodeSessionUpdateFailed   Code = "session_update_failed"
	CodeSessionNotFound       Code = "session_not_found"
	CodeUnauthorized          Code = "unauthorized"
	CodePersistenceFailed     Code = "persistence_failed"
)

// Error is the discriminated error value returned by session operations.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fatal(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

func fatalf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the failure code from an operation error, or "" when err
// is not a session error.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
