package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/smallbiznis/kitties/internal/kitty/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"unauthenticated", fmt.Errorf("%w: expired", domain.ErrUnauthenticated), http.StatusUnauthorized, "unauthorized"},
		{"not owner", domain.ErrNotOwner, http.StatusForbidden, "not_owner"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"capacity", domain.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"lock", domain.ErrLockUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"ids", domain.ErrIDSpaceExhausted, http.StatusServiceUnavailable, "service_unavailable"},
		{"price", domain.ErrInvalidPrice, http.StatusBadRequest, "validation_error"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
		{"nil", nil, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.kind, payload.Type)
		})
	}
}

func TestMapErrorValidationFields(t *testing.T) {
	_, payload := mapError(domain.ErrInvalidKittyID)
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "kitty_id", payload.Errors[0].Field)
		assert.Equal(t, "invalid_kitty_id", payload.Errors[0].Code)
	}

	_, payload = mapError(newValidationError("new_owner", "invalid_new_owner", "invalid new_owner"))
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "new_owner", payload.Errors[0].Field)
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(domain.ErrInvalidPrincipal)
	assert.Equal(t, "validation_error", kind)
	assert.Equal(t, "invalid_principal", code)

	kind, code = classifyErrorForLog(domain.ErrCapacityExceeded)
	assert.Equal(t, "capacity_exceeded", kind)
	assert.Equal(t, "capacity_exceeded", code)
}
