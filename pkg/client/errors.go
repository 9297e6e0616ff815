package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrQuotaExhausted is returned when the daily Marvel call quota is used up.
	ErrQuotaExhausted = errors.New("daily marvel quota exhausted")

	// ErrCircuitOpen is returned while the circuit breaker rejects requests.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (bad parameters, credentials).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429, the daily quota is exceeded.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents responses that could not be decoded.
	ErrorClassDecode ErrorClass = "decode"
)

// MarvelError represents a failed Marvel API call.
type MarvelError struct {
	StatusCode int
	// Code is the API error code, e.g. "InvalidCredentials" or "409".
	Code       string
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *MarvelError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("marvel %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, msg, e.Err)
	}
	return fmt.Sprintf("marvel %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *MarvelError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		// 4xx and decode errors repeat identically; 429 lasts until the quota resets
		return false
	}
}

// classOf returns the error class carried by err, or "" when it has none.
func classOf(err error) ErrorClass {
	var me *MarvelError
	if errors.As(err, &me) {
		return me.ErrorClass
	}
	return ""
}

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// apiErrorBody is the error payload. Marvel sends code either as a string
// ("InvalidCredentials") or as a number (409), and the text in status or message.
type apiErrorBody struct {
	Code    json.RawMessage `json:"code"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
}

const maxErrorBody = 64 << 10

// errorFromResponse builds a MarvelError from a non-200 response and closes its body.
func errorFromResponse(resp *http.Response) *MarvelError {
	defer resp.Body.Close()

	me := &MarvelError{
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp.StatusCode),
		Message:    http.StatusText(resp.StatusCode),
	}
	if me.ErrorClass == "" {
		me.ErrorClass = ErrorClassClient
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		me.Err = ErrQuotaExhausted
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return me
	}

	var body apiErrorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return me
	}
	me.Code = parseErrorCode(body.Code)
	switch {
	case body.Message != "":
		me.Message = body.Message
	case body.Status != "":
		me.Message = body.Status
	}
	return me
}

func parseErrorCode(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.Itoa(n)
	}
	return ""
}
