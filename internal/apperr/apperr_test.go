package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("list: %w", NotFound())
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.True(t, Is(wrapped, KindNotFound))
	assert.False(t, Is(nil, KindNotFound))
}

func TestHTTPStatusDistinctPerKind(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthorized: http.StatusUnauthorized,
		KindNotFound:     http.StatusNotFound,
		KindInvalidInput: http.StatusBadRequest,
		KindConflict:     http.StatusConflict,
		KindUpstream:     http.StatusBadGateway,
		KindInternal:     http.StatusInternalServerError,
	}
	seen := map[int]Kind{}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), kind)
		_, dup := seen[status]
		assert.False(t, dup, "status %d reused", status)
		seen[status] = kind
	}
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := Upstream("storage provider failed", errors.New("dial tcp 10.0.0.1: refused"))
	assert.Equal(t, "storage provider failed", PublicMessage(err))
	assert.Contains(t, err.Error(), "refused")
	assert.Equal(t, "internal server error", PublicMessage(errors.New("sql: connection reset")))
}
