package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nesavent/internal/apperr"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "konser-amal-2025", Slugify("Konser Amal 2025!"))
	assert.Equal(t, "seminar-ai-ml", Slugify("  Seminar: AI & ML  "))
	assert.Equal(t, "event", Slugify("!!!"))
}

func TestGenerateTicketCode(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	a := GenerateTicketCode(now)
	b := GenerateTicketCode(now)

	assert.True(t, strings.HasPrefix(a, "NSV-250301093000-"))
	assert.Len(t, a, len("NSV-250301093000-")+6)
	assert.NotEqual(t, a, b)
}

func TestPaginate(t *testing.T) {
	page, limit, offset := Paginate(0, 0, 12, 50)
	assert.Equal(t, []int{1, 12, 0}, []int{page, limit, offset})

	page, limit, offset = Paginate(3, 100, 12, 50)
	assert.Equal(t, []int{3, 50, 100}, []int{page, limit, offset})
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperr.New(apperr.NotFound, "order_not_found", "Pesanan tidak ditemukan"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"order_not_found"`)
	assert.Contains(t, rec.Body.String(), "Pesanan tidak ditemukan")

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestValidate(t *testing.T) {
	type body struct {
		OrderID string `validate:"required"`
		Email   string `validate:"omitempty,email"`
	}

	assert.NoError(t, Validate(body{OrderID: "o-1"}))

	err := Validate(body{})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "orderID")

	err = Validate(body{OrderID: "o-1", Email: "nope"})
	assert.Contains(t, err.Error(), "email")
}
