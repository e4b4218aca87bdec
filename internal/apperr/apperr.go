// Package apperr carries the error taxonomy shared by the checkout, reconciliation
// and return flows. Transport layers map a Kind to a status code; services only
// construct errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindExternal     Kind = "external"
	KindTransient    Kind = "transient"
)

// Sentinels for errors.Is.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrExternal     = &Error{Kind: KindExternal}
	ErrTransient    = &Error{Kind: KindTransient}
)

type Error struct {
	Kind  Kind
	Msg   string
	Items []string // offending item ids for unavailable-item conflicts
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Items) > 0 {
		msg += ": " + strings.Join(e.Items, ", ")
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so wrapped errors compare equal to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable is the conflict raised when checkout references items that are no
// longer purchasable.
func Unavailable(itemIDs ...string) error {
	return &Error{Kind: KindConflict, Msg: "items unavailable", Items: itemIDs}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func External(err error, format string, args ...any) error {
	return &Error{Kind: KindExternal, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Transient(err error) error {
	return &Error{Kind: KindTransient, Msg: "transaction conflict, retry", Err: err}
}

// KindOf returns the Kind of the first *Error in the chain, or "" when err is
// not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ItemsOf returns the offending item ids carried by an unavailable-item conflict.
func ItemsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Items
	}
	return nil
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindInvalidState:
		return http.StatusBadRequest
	case KindConflict, KindTransient:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
