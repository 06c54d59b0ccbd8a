package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsSentinel(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
	}{
		{KindTransport, ErrTransport},
		{KindAuthorization, ErrAuthorization},
		{KindSessionClosed, ErrSessionClosed},
		{KindAPIStatus, ErrAPIStatus},
		{KindParameter, ErrParameter},
		{KindRejected, ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &Error{Kind: tt.kind})
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transport(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, ClientErrorCode, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestFromResponse_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   int
		want   Kind
	}{
		{"http 401", http.StatusUnauthorized, 0, KindAuthorization},
		{"code -401 on 400", http.StatusBadRequest, -401, KindAuthorization},
		{"plain 400", http.StatusBadRequest, -2, KindAPIStatus},
		{"server error", http.StatusInternalServerError, -1, KindAPIStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromResponse(tt.status, tt.code, "msg")
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestFromResponse_EmptyMessageUsesStatusText(t *testing.T) {
	err := FromResponse(http.StatusForbidden, 0, "")
	assert.Equal(t, "Forbidden", err.Message)
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	orig := Parameter("bad %s", "id")
	assert.Same(t, orig, Normalize(fmt.Errorf("outer: %w", orig)))

	ctxErr := Normalize(context.DeadlineExceeded)
	assert.Equal(t, KindTransport, ctxErr.Kind)
	assert.ErrorIs(t, ctxErr, context.DeadlineExceeded)

	plain := Normalize(errors.New("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, ClientErrorCode, plain.Code)
	assert.Equal(t, "boom", plain.Message)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(nil))
	assert.Equal(t, KindSessionClosed, KindOf(SessionClosed("login required", nil)))
	assert.True(t, IsAuthorization(FromResponse(http.StatusUnauthorized, -401, "")))
}

func TestResult(t *testing.T) {
	r := FromResponse(http.StatusBadRequest, -2, "missing id").Result()
	assert.Equal(t, ErrorResult{ErrorCode: -2, ErrorMessage: "missing id", HTTPStatus: 400}, r)
	assert.Contains(t, r.String(), "errorCode=-2")
}

func TestCodeOf_Total(t *testing.T) {
	assert.Equal(t, CodeUnauthorized, CodeOf(-401))
	assert.Equal(t, CodeClientError, CodeOf(-777))
	assert.Equal(t, CodeUnderMaintenance, CodeOf(-9798))
	assert.Equal(t, CodeUnknown, CodeOf(-12345))
	assert.Equal(t, CodeUnknown, CodeOf(42))
	assert.Equal(t, "unauthorized", CodeUnauthorized.String())
	assert.Equal(t, "code(42)", ErrorCode(42).String())
}

func TestError_Variant(t *testing.T) {
	err := FromResponse(http.StatusForbidden, -406, "too young")
	assert.Equal(t, CodeUnderAgeLimit, err.Variant())
}
