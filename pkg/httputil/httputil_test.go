package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Response{Data: "hello"})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestWriteData_IncludesWarnings(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusOK, map[string]int{"count": 2}, Warning{
		Code:    "SYNC_FAILED",
		Message: "cart saved on this device only",
		Items:   []string{"p1"},
	})

	resp := decode(t, rec)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "SYNC_FAILED", resp.Warnings[0].Code)
	assert.Equal(t, []string{"p1"}, resp.Warnings[0].Items)
	assert.Nil(t, resp.Error)
}

func TestWriteData_OmitsEmptyWarnings(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusOK, "ok")

	assert.NotContains(t, rec.Body.String(), "warnings")
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "rejection keeps message verbatim",
			err:        fmt.Errorf("checkout: %w", apperrors.Rejected("Insufficient stock for Blue Mug")),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "REJECTED",
			wantMsg:    "Insufficient stock for Blue Mug",
		},
		{
			name:       "authentication required",
			err:        apperrors.AuthenticationRequired("sign in to check out"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "AUTHENTICATION_REQUIRED",
			wantMsg:    "sign in to check out",
		},
		{
			name:       "bare invalid input sentinel",
			err:        fmt.Errorf("quantity: %w", apperrors.ErrInvalidInput),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "unknown error hides details",
			err:        errors.New("redis: connection pool exhausted"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantMsg:    "an internal error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/checkout", nil)
			WriteError(rec, req, tt.err, testLogger())

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Error.Message)
			}
		})
	}
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := logger.WithCorrelationID(context.Background(), "req-77")
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	WriteError(rec, req, apperrors.NotFound("product", "9"), testLogger())

	resp := decode(t, rec)
	assert.Equal(t, "req-77", resp.Error.RequestID)
}

type itemBody struct {
	ProductID string `json:"product_id" validate:"required,productid"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"p1","quantity":2}`))
		var body itemBody
		require.NoError(t, DecodeJSON(req, &body))
		assert.Equal(t, itemBody{ProductID: "p1", Quantity: 2}, body)
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":`))
		var body itemBody
		err := DecodeJSON(req, &body)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("validation error maps to 400 with fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":1}`))
		var body itemBody
		err := DecodeJSON(req, &body)
		require.Error(t, err)

		rec := httptest.NewRecorder()
		WriteError(rec, req, err, testLogger())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode(t, rec)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		assert.Equal(t, "is required", resp.Error.Fields["product_id"])
	})
}
