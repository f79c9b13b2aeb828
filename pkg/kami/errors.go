package kami

import (
	"errors"
	"fmt"
)

// TransportError reports a failure to reach the Kami service at all:
// connection refused, DNS failure, timeout. The request may never have
// arrived, so the retry policy treats it as transient.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("error connecting to kami api on %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response that arrived but could not be decoded
// into a response envelope. Malformed payloads are not transient, so the
// retry policy never retries them.
type ProtocolError struct {
	Path string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Path, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// APIError reports an error carried inside a well-formed response
// envelope, either an explicit error payload or an envelope status code
// outside the 2xx range. The service may recover between attempts, so
// the retry policy treats it as transient.
type APIError struct {
	Message string
	ErrType string
}

func (e *APIError) Error() string {
	if e.ErrType != "" {
		return fmt.Sprintf("kami api error (%s): %s", e.ErrType, e.Message)
	}
	return "kami api error: " + e.Message
}

// ConfigError reports invalid or missing client configuration, such as an
// empty host or a subnet whose hyperparameters cannot support the
// requested operation. Never retried.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// ValidationError reports invalid caller input or a failed local
// validation, detected without or before a network round trip. Never
// retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Retryable reports whether the retry policy treats err as transient.
// Transport failures and API-level errors qualify; everything else,
// including protocol, configuration, and validation failures, surfaces
// immediately.
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ae *APIError
	return errors.As(err, &ae)
}
