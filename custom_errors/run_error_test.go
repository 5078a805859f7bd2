package custom_errors

import (
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindInvalidInput.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, KindPremature.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNoEvent.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, KindNoFreeThreads.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Kind("other").HTTPStatus())
}

func TestKind_Retryable(t *testing.T) {
	assert.True(t, KindPremature.Retryable())
	assert.True(t, KindNoFreeThreads.Retryable())
	assert.False(t, KindNoEvent.Retryable())
	assert.False(t, KindInvalidInput.Retryable())
}

func TestRunError_KindOf(t *testing.T) {
	err := NewRunError(KindNoEvent, "Job with identifier `%s` could not be found.", "1-a-b")
	assert.Equal(t, "Job with identifier `1-a-b` could not be found.", err.Message)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())

	wrapped := errors.Wrap(err, "run")
	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindNoEvent, kind)
	assert.True(t, IsKind(wrapped, KindNoEvent))
	assert.False(t, IsKind(wrapped, KindPremature))

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	assert.False(t, v.HasError())
	assert.Equal(t, "", v.Error())

	v.Add(nil)
	assert.False(t, v.HasError())

	v.Add(errors.New("first"))
	v.Add(errors.New("second"))
	assert.True(t, v.HasError())
	assert.Contains(t, v.Error(), "first")
	assert.Contains(t, v.Error(), "second")
}
