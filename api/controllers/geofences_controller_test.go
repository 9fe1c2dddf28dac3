package controllers

import (
	"net/http"
	"testing"

	"SecureAccess/api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeofenceLifecycle(t *testing.T) {
	s := newTestServer(t)
	createUser(t, s.DB, "root", "password123", true)
	token := loginAs(t, s, "root", "password123")

	w := doJSON(t, s, http.MethodPost, "/api/geofences", map[string]interface{}{
		"name":        "Line",
		"coordinates": [][2]float64{{0, 0}, {1, 1}, {0, 0}},
	}, withToken(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/geofences", map[string]interface{}{
		"coordinates": [][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}},
	}, withToken(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/geofences", map[string]interface{}{
		"name":        "Campus",
		"coordinates": [][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}},
	}, withToken(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)["response"].(map[string]interface{})
	fenceID := uint(created["id"].(float64))

	w = doJSON(t, s, http.MethodGet, "/api/geofences", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["response"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "root", list[0].(map[string]interface{})["created_by_username"])

	w = doJSON(t, s, http.MethodPost, "/api/geofences/check", map[string]float64{"lat": 5, "lng": 5})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["isInside"])
	assert.Equal(t, float64(1), body["totalFences"])
	assert.Len(t, body["geofences"], 1)

	w = doJSON(t, s, http.MethodPost, "/api/geofences/check", map[string]float64{"lat": 50, "lng": 50})
	assert.Equal(t, false, decode(t, w)["isInside"])

	w = doJSON(t, s, http.MethodPost, "/api/geofences/check", map[string]float64{"lat": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/geofences/"+itoa(fenceID), nil, withToken(token))
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, s, http.MethodDelete, "/api/geofences/"+itoa(fenceID), nil, withToken(token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var count int64
	require.NoError(t, s.DB.Model(&models.GeoFence{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCheckGeofence_NoFencesConfigured(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/geofences/check", map[string]float64{"lat": 5, "lng": 5})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["isInside"])
	assert.Equal(t, float64(0), body["totalFences"])
}
