package domain

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// ErrorKind classifies failures crossing the service boundaries
type ErrorKind string

// ErrorKind constants
const (
	KindNetworkFailure       ErrorKind = "NetworkFailure"
	KindProviderRejected     ErrorKind = "ProviderRejected"
	KindRunTerminalFailure   ErrorKind = "RunTerminalFailure"
	KindRunTimeout           ErrorKind = "RunTimeout"
	KindToolExecutionFailure ErrorKind = "ToolExecutionFailure"
	KindPriceUnavailable     ErrorKind = "PriceUnavailable"
	KindUnknownTool          ErrorKind = "UnknownTool"
	KindInvalidArgument      ErrorKind = "InvalidArgument"
	KindConfiguration        ErrorKind = "Configuration"
)

// Error is the typed failure returned by the exchange, provider and orchestration layers
type Error struct {
	Kind       ErrorKind
	Message    string
	Tool       string    // set for ToolExecutionFailure / UnknownTool
	Status     RunStatus // set for RunTerminalFailure
	HTTPStatus int       // set for ProviderRejected
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Tool != "" {
		b.WriteString(" [" + e.Tool + "]")
	}
	if e.Status != "" {
		b.WriteString(" [status=" + string(e.Status) + "]")
	}
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " [http=%d]", e.HTTPStatus)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the cause
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given kind
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsConflict reports a provider 409, meaning the run was resolved elsewhere
func IsConflict(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindProviderRejected && de.HTTPStatus == 409
}

type errorPayload struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind,omitempty"`
}

// ErrorPayload renders err as the flat {"error": ...} JSON string used for tool outputs and replies
func ErrorPayload(err error) string {
	payload := errorPayload{Error: err.Error(), Kind: KindOf(err)}
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		payload.Error = de.Message
		if de.Err != nil {
			payload.Error += ": " + de.Err.Error()
		}
	}
	data, mErr := json.Marshal(payload)
	if mErr != nil {
		return `{"error": "internal error"}`
	}
	return string(data)
}
