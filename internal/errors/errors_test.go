package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifiers(t *testing.T) {
	err := New("Op", PermissionDenied, "denied", nil)
	assert.True(t, IsPermissionDenied(err))
	assert.False(t, IsNotFound(err))
}

func TestWrappedErrorStillClassifies(t *testing.T) {
	inner := New("Op", NotFound, "missing", nil)
	wrapped := fmt.Errorf("context: %w", inner)
	assert.True(t, IsNotFound(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, InvalidArgument.HTTPStatus())
	assert.Equal(t, 403, PermissionDenied.HTTPStatus())
	assert.Equal(t, 404, NotFound.HTTPStatus())
	assert.Equal(t, 412, FailedPrecondition.HTTPStatus())
	assert.Equal(t, 500, Internal.HTTPStatus())
}
