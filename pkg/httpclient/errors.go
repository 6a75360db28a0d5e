package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// errorBody covers the two error shapes the shop API is known to return:
// the envelope `{"error":{"code","message"}}` and the FastAPI style
// `{"detail": "..."}` where detail may also be a list of validation items.
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

type validationItem struct {
	Msg string `json:"msg"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The response body is fully consumed and closed.
//
// 4xx answers keep the remote message verbatim (no service prefix) because
// they are business answers that may be shown to the shopper as-is.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := "", ""
	var body errorBody
	if json.Unmarshal(bodyBytes, &body) == nil {
		switch {
		case body.Error != nil:
			code, message = body.Error.Code, body.Error.Message
		case len(body.Detail) > 0:
			message = detailMessage(body.Detail)
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(bodyBytes))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return mapStatus(resp.StatusCode, code, message, serviceName)
}

// detailMessage flattens a FastAPI detail value into one line.
func detailMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var items []validationItem
	if json.Unmarshal(raw, &items) == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return string(raw)
}

func mapStatus(status int, code, message, serviceName string) error {
	switch {
	case status == http.StatusNotFound:
		return &apperrors.AppError{Code: orDefault(code, "NOT_FOUND"), Message: message, Status: status, Err: apperrors.ErrNotFound}
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(message)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(message)
	case status == http.StatusConflict:
		return apperrors.Conflict(message)
	case status == http.StatusTooManyRequests:
		return &apperrors.AppError{Code: "RATE_LIMITED", Message: message, Status: status, Err: apperrors.ErrServiceUnavail}
	case status >= 400 && status < 500:
		// Any other client error is the shop refusing the request for a
		// business reason (out of stock, invalid quantity, ...).
		return &apperrors.AppError{Code: orDefault(code, "REJECTED"), Message: message, Status: status, Err: apperrors.ErrRejected}
	case status == http.StatusServiceUnavailable:
		return &apperrors.AppError{
			Code:    orDefault(code, "SERVICE_UNAVAILABLE"),
			Message: fmt.Sprintf("%s: %s", serviceName, message),
			Status:  status,
			Err:     apperrors.ErrServiceUnavail,
		}
	default:
		return &apperrors.AppError{
			Code:    orDefault(code, "UPSTREAM_ERROR"),
			Message: fmt.Sprintf("%s returned status %d: %s", serviceName, status, message),
			Status:  status,
			Err:     apperrors.ErrServiceUnavail,
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
