package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrNetwork          = errors.New("network failure")                 // Request error or non-success status
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")         // Wraps original status
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")         // Wraps original status
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")      // Wraps original status
	ErrProbeRejected    = errors.New("metadata probe rejected")         // HEAD failed; caller assumes HTML
	ErrDecodeFailure    = errors.New("image decode failed")             // Bytes fetched but not decodable
	ErrNoCandidate      = errors.New("no embedded image candidate")     // HTML scanned, nothing matched
	ErrUnpursuedType    = errors.New("content type is neither image nor html")
	ErrCancelled        = errors.New("cancelled")                       // Context observed done at a check point
	ErrRequestCreation  = errors.New("failed to create HTTP request")   // Bad URL or method
	ErrResponseBodyRead = errors.New("failed to read response body")    // Body stream broke mid-read
	ErrImageTooLarge    = errors.New("image exceeds maximum size")      // Body hit max_image_size_bytes
	ErrInvalidRef       = errors.New("invalid resolved image reference") // Ref built without an image URL
	ErrConfigValidation = errors.New("configuration validation error")
)

// WrapErrorf prefixes err with a formatted message. Returns nil for a nil err.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Cancelled wraps ctx.Err() with ErrCancelled so both remain matchable.
func Cancelled(ctx context.Context, stage string) error {
	return fmt.Errorf("%w at %s: %w", ErrCancelled, stage, ctx.Err())
}

// CategorizeError maps an error to a predefined category string for logging.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrCancelled):
		return "System_Cancelled"
	case errors.Is(err, ErrProbeRejected):
		// Probe failures are a signal, but keep the HTTP detail when there is one
		if errors.Is(err, ErrClientHTTPError) || errors.Is(err, ErrServerHTTPError) || errors.Is(err, ErrOtherHTTPError) {
			return "Probe_Rejected_HTTP"
		}
		return "Probe_Rejected"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 405 ") {
			return "HTTP_405"
		}
		if strings.Contains(errMsg, " 429 ") {
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrNoCandidate):
		return "Content_NoCandidate"
	case errors.Is(err, ErrUnpursuedType):
		return "Content_Unpursued"
	case errors.Is(err, ErrImageTooLarge):
		return "Content_TooLarge"
	case errors.Is(err, ErrDecodeFailure):
		return "Decode_Failure"
	case errors.Is(err, ErrInvalidRef):
		return "Internal_InvalidRef"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for common underlying error types/strings ---

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "timeout") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") {
		return "Network_TLS"
	}
	if strings.Contains(lowerErrMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}
	if errors.Is(err, ErrNetwork) {
		return "Network_Other"
	}

	return "Unknown"
}
