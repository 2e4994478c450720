package pkg

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrKind int

const (
	KindInternal ErrKind = iota
	KindNotFound
	KindValidation
	KindForbidden
	KindUnauthorized
	KindConflict
)

// AppError is a request-terminating domain error.
type AppError struct {
	Kind ErrKind
	Msg  string
}

func (e *AppError) Error() string { return e.Msg }

func NotFound(format string, args ...any) error {
	return &AppError{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return &AppError{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &AppError{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) error {
	return &AppError{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &AppError{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns KindInternal for errors that are not AppErrors.
func KindOf(err error) ErrKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrKind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
