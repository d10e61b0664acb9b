package api

import (
	"errors"
	"fmt"
)

// ErrDisconnected is returned for requests that were in flight, or issued,
// while the connection was down. Callers treat it as transient.
var ErrDisconnected = errors.New("connection lost")

// ErrClosed is returned after Close; never retried.
var ErrClosed = errors.New("client closed")

// Error codes the server attaches to failed calls. The retry layer
// classifies these; everything else is fatal for the operation.
const (
	CodeDisconnect         = "DisconnectError"
	CodeRateLimit          = "RateLimit"
	CodeCallError          = "CallError"
	CodeWrongResponse      = "WrongResponse"
	CodeGetProposalFailure = "GetProposalFailure"
	CodeAuthorizationError = "AuthorizationRequired"
	CodeInvalidToken       = "InvalidToken"
)

// APIError is a code-bearing error returned by the remote trading API.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Message)
}

// NewAPIError builds an APIError; used by the ws client and test stubs.
func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}
