// Package api implements the HTTP client for the OpenWebUI API: request
// building, response classification, and streaming chat consumption.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// ErrorKind classifies a CLI failure into one of the fixed exit-code buckets.
type ErrorKind int

const (
	KindGeneral ErrorKind = iota
	KindUsage
	KindAuth
	KindNetwork
	KindServer
)

// Exit codes, one per error kind. Success is 0.
const (
	ExitSuccess = 0
	ExitGeneral = 1
	ExitUsage   = 2
	ExitAuth    = 3
	ExitNetwork = 4
	ExitServer  = 5
)

func (k ErrorKind) ExitCode() int {
	switch k {
	case KindUsage:
		return ExitUsage
	case KindAuth:
		return ExitAuth
	case KindNetwork:
		return ExitNetwork
	case KindServer:
		return ExitServer
	default:
		return ExitGeneral
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	default:
		return "general"
	}
}

// Error is a classified CLI error. StatusCode is set when the error was
// derived from an HTTP response.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

func Usagef(format string, args ...any) *Error {
	return &Error{Kind: KindUsage, Message: fmt.Sprintf(format, args...)}
}

func Authf(format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...)}
}

func Networkf(format string, args ...any) *Error {
	return &Error{Kind: KindNetwork, Message: fmt.Sprintf(format, args...)}
}

func Serverf(format string, args ...any) *Error {
	return &Error{Kind: KindServer, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps any error to its exit code. Unclassified errors are general
// failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var cliErr *Error
	if errors.As(err, &cliErr) {
		return cliErr.Kind.ExitCode()
	}
	return ExitGeneral
}

// errorBody is the shape OpenWebUI uses for error payloads. FastAPI puts the
// human-readable text under "detail"; some endpoints use "message".
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// extractErrorMessage pulls a message out of an error response body, applying
// extraction rules in priority order: "detail" (string), "message", raw body.
func extractErrorMessage(body []byte, fallback string) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if len(eb.Detail) > 0 {
			var s string
			if err := json.Unmarshal(eb.Detail, &s); err == nil && s != "" {
				return s
			}
			// Non-string detail (e.g. validation list): keep it verbatim.
			return string(eb.Detail)
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	if len(body) > 0 {
		return string(body)
	}
	return fallback
}

// classifyStatus maps a non-2xx response to a typed error. Classification is
// centralized here so every command surfaces identical messages for the same
// failure.
func classifyStatus(statusCode int, body []byte) *Error {
	switch {
	case statusCode == 401:
		return &Error{
			Kind:       KindAuth,
			StatusCode: statusCode,
			Message: "authentication required, please run 'openwebui auth login' first\n" +
				"if you recently logged in, your token may have expired",
		}
	case statusCode == 403:
		return &Error{
			Kind:       KindAuth,
			StatusCode: statusCode,
			Message: "permission denied, this operation requires higher privileges\n" +
				"possible causes:\n" +
				"  - your user role lacks required permissions\n" +
				"  - the API key doesn't have sufficient access\n" +
				"  - try logging in again: openwebui auth login",
		}
	case statusCode == 404:
		msg := extractErrorMessage(body, "resource not found")
		return &Error{
			Kind:       KindServer,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("not found: %s\ncheck that the resource ID, model name, or endpoint is correct", msg),
		}
	case statusCode >= 500:
		return &Error{
			Kind:       KindServer,
			StatusCode: statusCode,
			Message: fmt.Sprintf("server error (%d): %s\nthe OpenWebUI server encountered an error\n"+
				"try again in a moment, or check server logs if you're the administrator", statusCode, string(body)),
		}
	default:
		msg := extractErrorMessage(body, fmt.Sprintf("HTTP %d", statusCode))
		return &Error{
			Kind:       KindServer,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("API error (%d): %s\ncheck your request parameters and try again", statusCode, msg),
		}
	}
}

// classifyTransport maps a transport-level failure (no HTTP response) to a
// Network error with actionable guidance.
func classifyTransport(err error) *Error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return Networkf("could not connect to server: %v\n"+
			"possible solutions:\n"+
			"  - check that OpenWebUI is running\n"+
			"  - verify the URI: openwebui config init\n"+
			"  - try: openwebui --uri http://localhost:8080 auth login", err)
	}
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return Networkf("request timed out: %v\n"+
			"possible solutions:\n"+
			"  - increase timeout: openwebui --timeout 60 ...\n"+
			"  - check your network connection\n"+
			"  - the server might be overloaded", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Networkf("request to %s failed: %v\ncheck your network connection and server configuration", urlErr.URL, urlErr.Err)
	}
	return Networkf("request failed: %v\ncheck your network connection and server configuration", err)
}
