package http

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func TestAddresses_SaveDefaultDelete(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/addresses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/addresses", SaveAddressRequestDTO{Line: "Av. Siempre Viva 742"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	home := decode[domain.Address](t, rec)
	assert.True(t, home.IsDefault)

	rec = ts.do(t, http.MethodPost, "/api/v1/addresses", SaveAddressRequestDTO{
		Line: "Calle Falsa 123", Latitude: floatPtr(-33.45), Longitude: floatPtr(-70.66),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	work := decode[domain.Address](t, rec)
	assert.False(t, work.IsDefault)
	require.NotNil(t, work.Location)

	rec = ts.do(t, http.MethodPut, fmt.Sprintf("/api/v1/addresses/%d/default", work.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]domain.Address](t, rec)
	require.Len(t, list, 2)
	defaults := 0
	for _, a := range list {
		if a.IsDefault {
			defaults++
			assert.Equal(t, work.ID, a.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	rec = ts.do(t, http.MethodPost, "/api/v1/addresses", SaveAddressRequestDTO{ID: home.ID, Line: "Av. Siempre Viva 744"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.Address](t, rec).IsDefault)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/addresses/%d", work.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/addresses", nil)
	list = decode[[]domain.Address](t, rec)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsDefault)
}

func TestAddresses_Validation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/addresses", SaveAddressRequestDTO{Line: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_address", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/addresses", SaveAddressRequestDTO{Line: "x", Latitude: floatPtr(1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_location", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/addresses/42/default", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "address_not_found", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/addresses/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddresses_OtherUserCannotTouch(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/addresses", SaveAddressRequestDTO{Line: "Av. Siempre Viva 742"})
	require.Equal(t, http.StatusCreated, rec.Code)
	home := decode[domain.Address](t, rec)

	other := testUser()
	other.ID = 2
	ts.sessions.SignIn(other)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/addresses/%d", home.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/addresses", SaveAddressRequestDTO{ID: home.ID, Line: "hijack"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
