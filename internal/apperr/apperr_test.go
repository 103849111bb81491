package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSoldOut = New(Business, "insufficient_stock", "Stok tiket tidak mencukupi")

func TestWrappedSentinelMatches(t *testing.T) {
	err := fmt.Errorf("reserve tier: %w", Wrap(errSoldOut, errors.New("0 rows")))

	assert.True(t, errors.Is(err, errSoldOut))
	assert.Equal(t, Business, KindOf(err))
	assert.Equal(t, "insufficient_stock", CodeOf(err))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(err))
	assert.Equal(t, "Stok tiket tidak mencukupi", PublicMessage(err))
}

func TestPlainErrorsAreInternal(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.NotContains(t, PublicMessage(err), "connection reset")
}

func TestStatusPerKind(t *testing.T) {
	cases := map[Kind]int{
		Validation: http.StatusBadRequest,
		NotFound:   http.StatusNotFound,
		Forbidden:  http.StatusForbidden,
		Conflict:   http.StatusConflict,
		Upstream:   http.StatusBadGateway,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(New(kind, "x", "x")), string(kind))
	}
}
