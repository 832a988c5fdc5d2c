package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrBadRequest, http.StatusBadRequest},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrAccessDenied, http.StatusForbidden},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{ErrInternalServer, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		err := NewAPIError(tt.code, "boom", nil)
		assert.Equal(t, tt.status, MapErrorToHTTPStatus(err))
	}

	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("plain error")))
}

func TestAPIErrorMessage(t *testing.T) {
	err := NewAPIError(ErrAccessDenied, "tenant not allowed", "tn_1")
	assert.Equal(t, "ACCESS_DENIED: tenant not allowed", err.Error())
}
