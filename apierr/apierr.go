// Package apierr is the error taxonomy shared by the API client, the query
// cache and the mutation coordinator. Errors pass through the cache unchanged;
// callers branch on Kind.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuth
	KindValidation
	KindServer
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is; matching is by kind only.
var (
	ErrNetwork    = &Error{Kind: KindNetwork, Message: "network error"}
	ErrAuth       = &Error{Kind: KindAuth, Message: "authentication required"}
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrServer     = &Error{Kind: KindServer, Message: "server error"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnknown    = &Error{Kind: KindUnknown, Message: "unknown error"}
)

// Error is an API failure with a kind and a human-readable message.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 when no response was received
	Code    string // machine code from the API body, if any
	Message string
	Fields  map[string]string // per-field validation messages
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap classifies err when it is not already an *Error.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: classify(err), Message: "request failed", Cause: err}
}

// KindOf returns the kind of the first *Error in err's chain, classifying
// transport failures that never reached the API as KindNetwork.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return classify(err)
}

func IsAuth(err error) bool { return err != nil && KindOf(err) == KindAuth }

func classify(err error) Kind {
	var ne net.Error
	var ue *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.As(err, &ne), errors.As(err, &ue):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// body is the error envelope returned by the console API.
type body struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields"`
}

// FromStatus builds an *Error from a non-2xx response.
func FromStatus(status int, raw []byte) *Error {
	e := &Error{Status: status, Kind: kindForStatus(status)}
	var b body
	if len(raw) > 0 && json.Unmarshal(raw, &b) == nil {
		e.Code = b.Code
		e.Message = b.Message
		if e.Message == "" {
			e.Message = b.Error
		}
		e.Fields = b.Fields
	}
	if e.Message == "" {
		e.Message = strings.ToLower(http.StatusText(status))
	}
	return e
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound, status == http.StatusGone:
		return KindNotFound
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return KindNetwork
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}
