// Package notice holds the user-facing notices and the error taxonomy of the
// checkout pipeline. Every failure carries a concrete next action for the buyer.
package notice

import (
	"errors"
	"net/http"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Kind classifies a failure.
type Kind string

const (
	KindTransient        Kind = "transient"
	KindValidation       Kind = "validation"
	KindGatewayRejection Kind = "gateway_rejection"
	KindStateConflict    Kind = "state_conflict"
	KindNotFound         Kind = "not_found"
	KindUnauthorized     Kind = "unauthorized"
)

// NextAction tells the surface what the buyer can do after a notice.
type NextAction string

const (
	ActionNone          NextAction = ""
	ActionRetryCheckout NextAction = "retry_checkout"
	ActionRetryPayment  NextAction = "retry_payment"
	ActionBackToOrders  NextAction = "back_to_orders"
	ActionFixSelection  NextAction = "fix_selection"
	ActionReload        NextAction = "reload"
	ActionSignIn        NextAction = "sign_in"
)

// Notice is a dismissible message rendered by a surface.
type Notice struct {
	Level      Level      `json:"level"`
	Message    string     `json:"message"`
	NextAction NextAction `json:"next_action,omitempty"`
	Path       string     `json:"path,omitempty"`
}

// Info builds an informational notice.
func Info(message string) Notice {
	return Notice{Level: LevelInfo, Message: message}
}

// Success builds a success notice.
func Success(message string) Notice {
	return Notice{Level: LevelSuccess, Message: message}
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Next    NextAction
	Path    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Notice renders the error for a surface.
func (e *Error) Notice() Notice {
	return Notice{Level: LevelError, Message: e.Message, NextAction: e.Next, Path: e.Path}
}

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindGatewayRejection:
		return http.StatusBadGateway
	case KindStateConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusServiceUnavailable
}

// Transient wraps a retryable network failure.
func Transient(message string, next NextAction, err error) *Error {
	return &Error{Kind: KindTransient, Message: message, Next: next, Err: err}
}

// Validation blocks progression without any request being sent.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Next: ActionFixSelection}
}

// GatewayRejection reports a gateway refusal; the order stays payable.
func GatewayRejection(message, path string, err error) *Error {
	return &Error{Kind: KindGatewayRejection, Message: message, Next: ActionRetryPayment, Path: path, Err: err}
}

// Conflict reports an action the current state no longer allows.
func Conflict(message string, next NextAction, err error) *Error {
	return &Error{Kind: KindStateConflict, Message: message, Next: next, Err: err}
}

// NotFound reports a missing resource.
func NotFound(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Next: ActionBackToOrders, Err: err}
}

// From returns err as an *Error, classifying unknown errors as transient.
func From(err error, next NextAction) *Error {
	var ne *Error
	if errors.As(err, &ne) {
		return ne
	}
	return Transient("Something went wrong, please try again", next, err)
}
