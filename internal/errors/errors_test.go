package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		errType ErrorType
		status  int
	}{
		{TypeValidation, http.StatusBadRequest},
		{TypeNotFound, http.StatusNotFound},
		{TypeConflict, http.StatusConflict},
		{TypeQuota, http.StatusTooManyRequests},
		{TypeUpstreamTimeout, http.StatusRequestTimeout},
		{TypeUpstreamRejected, http.StatusBadGateway},
		{TypeInternal, http.StatusInternalServerError},
		{ErrorType("bogus"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		err := &Error{Type: tt.errType, Message: "m"}
		assert.Equal(t, tt.status, err.HTTPStatus(), "type %s", tt.errType)
	}
}

func TestAsStructuredError_PassesThrough(t *testing.T) {
	original := QuotaError("cap reached")
	wrapped := fmt.Errorf("handler: %w", original)

	got := AsStructuredError(wrapped)
	assert.Same(t, original, got)
}

func TestAsStructuredError_MapsDomainSentinels(t *testing.T) {
	tests := []struct {
		err     error
		errType ErrorType
	}{
		{domain.ErrSessionNotFound, TypeNotFound},
		{domain.ErrAppNotFound, TypeNotFound},
		{domain.ErrQuotaExceeded, TypeQuota},
		{domain.ErrAlreadyConnected, TypeConflict},
		{domain.ErrUpstreamTimeout, TypeUpstreamTimeout},
		{domain.ErrUpstreamRejected, TypeUpstreamRejected},
	}

	for _, tt := range tests {
		got := AsStructuredError(fmt.Errorf("wrap: %w", tt.err))
		require.NotNil(t, got)
		assert.Equal(t, tt.errType, got.Type, "error %v", tt.err)
	}
}

func TestAsStructuredError_UnknownBecomesInternal(t *testing.T) {
	got := AsStructuredError(fmt.Errorf("boom"))
	require.NotNil(t, got)
	assert.Equal(t, TypeInternal, got.Type)
	assert.Equal(t, "internal server error", got.Message)
}

func TestAsStructuredError_Nil(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("root")
	err := InternalError("wrapper", cause)
	assert.ErrorIs(t, err, cause)
}

func TestWithContext(t *testing.T) {
	err := NotFoundError("missing").WithContext("session_id", "abc")
	resp := err.ToResponse()
	assert.Equal(t, "missing", resp.Error)
	assert.Equal(t, "abc", resp.Context["session_id"])
}
