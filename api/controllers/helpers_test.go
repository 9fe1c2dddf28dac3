package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"SecureAccess/api/audit"
	"SecureAccess/api/config"
	"SecureAccess/api/geofence"
	"SecureAccess/api/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testCookie = "sid"

var remoteCounter uint32

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	server := &Server{Audit: audit.NewSyncRecorder(audit.NewStore(db), nil)}
	require.NoError(t, server.Setup(db, config.Config{
		AppEnv:            "test",
		SessionSecret:     "test-secret",
		SessionTTL:        time.Hour,
		SessionCookie:     testCookie,
		CORSOrigins:       []string{"http://localhost:3000"},
		CredentialTimeout: 5 * time.Second,
		AuditQueueSize:    16,
	}, nil))
	return server
}

func createUser(t *testing.T, db *gorm.DB, username, password string, admin bool, roles ...uint) *models.User {
	t.Helper()
	u := &models.User{Username: username, Password: password, Email: username + "@example.com", IsAdmin: admin, IsActive: true}
	for _, r := range roles {
		u.Roles = append(u.Roles, models.UserRole{RoleID: r})
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// createSquare stores the fence [[0,0],[0,10],[10,10],[10,0]].
func createSquare(t *testing.T, s *Server) {
	t.Helper()
	_, err := s.Fences.Create(context.Background(), "Campus", []geofence.Vertex{{0, 0}, {0, 10}, {10, 10}, {10, 0}}, nil)
	require.NoError(t, err)
}

type reqOption func(*http.Request)

func withToken(token string) reqOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) reqOption {
	return func(r *http.Request) { r.AddCookie(c) }
}

// doJSON sends body as JSON from a fresh client address so rate limits do not
// carry over between requests.
func doJSON(t *testing.T, s *Server, method, path string, body interface{}, opts ...reqOption) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	n := atomic.AddUint32(&remoteCounter, 1)
	req.RemoteAddr = fmt.Sprintf("10.%d.%d.%d:4000", (n>>16)&0xff, (n>>8)&0xff, n&0xff)
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// loginAs logs in without location or device and returns the session token.
func loginAs(t *testing.T, s *Server, username, password string) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/auth/login", map[string]interface{}{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookie {
			return c
		}
	}
	return nil
}

func itoa(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}
