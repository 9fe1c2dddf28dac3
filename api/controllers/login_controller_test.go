package controllers

import (
	"context"
	"net/http"
	"testing"

	"SecureAccess/api/models"
	"SecureAccess/api/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginBody(username, password, fingerprint string, lat, lng float64) map[string]interface{} {
	return map[string]interface{}{
		"username":          username,
		"password":          password,
		"deviceFingerprint": fingerprint,
		"deviceInfo":        map[string]interface{}{"platform": "Linux x86_64"},
		"location":          map[string]float64{"lat": lat, "lng": lng},
	}
}

func TestLogin_Success(t *testing.T) {
	s := newTestServer(t)
	createUser(t, s.DB, "alice", "password123", false, models.RoleStudent)
	createSquare(t, s)

	w := doJSON(t, s, http.MethodPost, "/api/auth/login", loginBody("Alice", "password123", "F1", 5, 5))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["sessionEstablished"])
	assert.Equal(t, "lms", body["redirectTo"])
	principal := body["principal"].(map[string]interface{})
	assert.Equal(t, "alice", principal["username"])
	assert.Equal(t, "F1", principal["deviceFingerprint"])
	assert.NotNil(t, sessionCookie(w))

	var devices []models.AuthorizedDevice
	require.NoError(t, s.DB.Where("username = ?", "alice").Find(&devices).Error)
	require.Len(t, devices, 1)
	assert.True(t, devices[0].AutoAuthorized)

	var logs []models.AuthLog
	require.NoError(t, s.DB.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, "credentials", logs[0].AuthStep)
}

func TestLogin_FailureResponses(t *testing.T) {
	s := newTestServer(t)
	createUser(t, s.DB, "alice", "password123", false)
	createSquare(t, s)

	cases := []struct {
		name     string
		body     map[string]interface{}
		status   int
		message  string
		approval bool
	}{
		{"missing password", map[string]interface{}{"username": "alice"}, http.StatusBadRequest, "missing required field", false},
		{"outside fence", loginBody("alice", "password123", "F1", 50, 50), http.StatusForbidden, "outside permitted area", false},
		{"bad coordinates", loginBody("alice", "password123", "F1", 500, 5), http.StatusBadRequest, "invalid location", false},
		{"wrong password", loginBody("alice", "nope-nope", "F1", 5, 5), http.StatusUnauthorized, "invalid credentials", false},
		{"unknown user", loginBody("mallory", "password123", "F9", 5, 5), http.StatusUnauthorized, "invalid credentials", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/api/auth/login", tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.message, body["error"])
			_, flagged := body["requiresManualApproval"]
			assert.Equal(t, tc.approval, flagged)
			assert.Nil(t, sessionCookie(w))
		})
	}

	var unknownDevices int64
	require.NoError(t, s.DB.Model(&models.AuthorizedDevice{}).Where("username = ?", "mallory").Count(&unknownDevices).Error)
	assert.Zero(t, unknownDevices)
}

func TestLogin_DeviceNeedsApproval(t *testing.T) {
	s := newTestServer(t)
	createUser(t, s.DB, "alice", "password123", false)
	createSquare(t, s)
	_, err := s.PolicyStore.Set(context.Background(), policy.KeyAutoAuthorize, "false")
	require.NoError(t, err)

	w := doJSON(t, s, http.MethodPost, "/api/auth/login", loginBody("alice", "password123", "NEW-DEVICE", 5, 5))
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decode(t, w)
	assert.Equal(t, "device not authorized", body["error"])
	assert.Equal(t, true, body["requiresManualApproval"])
	assert.Equal(t, "NEW-DEVICE", body["deviceFingerprint"])

	var logs []models.AuthLog
	require.NoError(t, s.DB.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "device", logs[0].AuthStep)
	assert.False(t, logs[0].Success)
}

func TestLogin_MalformedBody(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/auth/login", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	createUser(t, s.DB, "bob", "password123", false)

	w := doJSON(t, s, http.MethodGet, "/api/auth/check-session", nil)
	assert.Equal(t, false, decode(t, w)["authenticated"])

	w = doJSON(t, s, http.MethodPost, "/api/auth/login", map[string]interface{}{"username": "bob", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "home", decode(t, w)["redirectTo"])
	cookie := sessionCookie(w)
	require.NotNil(t, cookie)

	w = doJSON(t, s, http.MethodGet, "/api/auth/check-session", nil, withCookie(cookie))
	body := decode(t, w)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "bob", body["user"].(map[string]interface{})["username"])

	w = doJSON(t, s, http.MethodPost, "/api/auth/logout", nil, withCookie(cookie))
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/auth/check-session", nil, withCookie(cookie))
	assert.Equal(t, false, decode(t, w)["authenticated"])
}

func TestVerifyDevice(t *testing.T) {
	s := newTestServer(t)
	createUser(t, s.DB, "alice", "password123", false)
	createSquare(t, s)

	w := doJSON(t, s, http.MethodPost, "/api/auth/verify-device", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/auth/verify-device", map[string]string{"deviceFingerprint": "F1"})
	body := decode(t, w)
	assert.Equal(t, false, body["authorized"])
	assert.Equal(t, true, body["requiresManualApproval"])

	w = doJSON(t, s, http.MethodPost, "/api/auth/login", loginBody("alice", "password123", "F1", 5, 5))
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/auth/verify-device", map[string]string{"deviceFingerprint": "F1", "username": "alice"})
	body = decode(t, w)
	assert.Equal(t, true, body["authorized"])
	assert.NotEmpty(t, body["deviceId"])

	w = doJSON(t, s, http.MethodPost, "/api/auth/verify-device", map[string]string{"deviceFingerprint": "F1", "username": "bob"})
	assert.Equal(t, false, decode(t, w)["authorized"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, "disabled", body["redis"])
}
