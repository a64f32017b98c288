package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/codetogether/internal/change"
	"github.com/manpreetbhatti/codetogether/internal/db"
	"github.com/manpreetbhatti/codetogether/internal/db/sqlite"
	"github.com/manpreetbhatti/codetogether/internal/logging"
	"github.com/manpreetbhatti/codetogether/internal/ratelimit"
	"github.com/manpreetbhatti/codetogether/internal/session"
)

type testAPI struct {
	api     *API
	router  http.Handler
	manager *session.Manager
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()

	database, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	manager := session.NewManager(database, session.Options{Logger: logging.Nop()})
	limiters := ratelimit.NewClientLimiters(1000, 1000)
	api := New(database, manager, limiters, logging.Nop())

	t.Cleanup(func() {
		limiters.Stop()
		database.Close()
	})

	return &testAPI{
		api:     api,
		router:  NewRouter(api, nil, nil),
		manager: manager,
	}
}

func (ta *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var response map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func (ta *testAPI) createRoom(t *testing.T, body string) map[string]any {
	t.Helper()

	w := ta.do(http.MethodPost, "/api/rooms", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func (ta *testAPI) join(t *testing.T, connID, roomID, participantID string) *session.Conn {
	t.Helper()

	conn := session.NewConn(connID, nopSink{})
	require.NoError(t, ta.manager.Join(context.Background(), conn, roomID, participantID))
	return conn
}

func TestHealthHandler(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestStatsHandler(t *testing.T) {
	ta := setupTestAPI(t)

	roomID := ta.createRoom(t, `{"roomName":"Stats"}`)["id"].(string)
	ta.join(t, "c1", roomID, "A")

	w := ta.do(http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, float64(1), response["activeRooms"])
	assert.Equal(t, float64(1), response["activeParticipants"])
	assert.Equal(t, float64(1), response["totalRooms"])
}

func TestCreateRoom(t *testing.T) {
	ta := setupTestAPI(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"with name and language", `{"roomName":"Test Room 1","language":"python"}`, http.StatusCreated},
		{"with password", `{"roomName":"Secret","password":"hunter2"}`, http.StatusCreated},
		{"missing name", `{"language":"go"}`, http.StatusBadRequest},
		{"invalid JSON", `invalid json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ta.do(http.MethodPost, "/api/rooms", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestCreateRoomResponse(t *testing.T) {
	ta := setupTestAPI(t)

	plain := ta.createRoom(t, `{"roomName":"Plain"}`)
	assert.NotEmpty(t, plain["id"])
	assert.Equal(t, db.DefaultLanguage, plain["language"])
	assert.Equal(t, false, plain["hasPassword"])
	assert.Equal(t, "", plain["content"])

	secret := ta.createRoom(t, `{"roomName":"Secret","password":"hunter2"}`)
	assert.Equal(t, true, secret["hasPassword"])
	assert.NotContains(t, secret, "password")
	assert.NotContains(t, secret, "passwordHash")
}

func TestGetRoom(t *testing.T) {
	ta := setupTestAPI(t)

	roomID := ta.createRoom(t, `{"roomName":"Get Test Room"}`)["id"].(string)

	w := ta.do(http.MethodGet, "/api/rooms/"+roomID, "")
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, roomID, response["id"])
	assert.Equal(t, "Get Test Room", response["roomName"])
	assert.Equal(t, float64(0), response["activeUsers"])
}

func TestGetRoomNotFound(t *testing.T) {
	ta := setupTestAPI(t)

	w := ta.do(http.MethodGet, "/api/rooms/non-existent", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Room not found", decode(t, w)["message"])
}

func TestGetActiveRoom(t *testing.T) {
	ta := setupTestAPI(t)

	roomID := ta.createRoom(t, `{"roomName":"Busy"}`)["id"].(string)
	conn := ta.join(t, "c1", roomID, "A")
	require.NoError(t, ta.manager.Edit(conn, roomID, []change.Edit{{From: 0, To: 0, Insert: "live"}}))

	response := decode(t, ta.do(http.MethodGet, "/api/rooms/"+roomID, ""))
	assert.Equal(t, float64(1), response["activeUsers"])
	assert.Equal(t, "live", response["content"])

	w := ta.do(http.MethodPut, "/api/rooms/"+roomID, `{"code":"overwrite"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateCode(t *testing.T) {
	ta := setupTestAPI(t)

	roomID := ta.createRoom(t, `{"roomName":"Update"}`)["id"].(string)

	w := ta.do(http.MethodPut, "/api/rooms/"+roomID, `{"code":"print(1)"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "print(1)", decode(t, w)["content"])

	assert.Equal(t, http.StatusNotFound, ta.do(http.MethodPut, "/api/rooms/missing", `{"code":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, ta.do(http.MethodPut, "/api/rooms/"+roomID, `{}`).Code)
}

func TestListRooms(t *testing.T) {
	ta := setupTestAPI(t)

	for i := 0; i < 5; i++ {
		ta.createRoom(t, `{"roomName":"Room `+string(rune('A'+i))+`"}`)
	}

	w := ta.do(http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)

	rooms, ok := decode(t, w)["rooms"].([]any)
	require.True(t, ok, "response should contain a rooms array")
	assert.Len(t, rooms, 5)
	for _, room := range rooms {
		assert.NotContains(t, room.(map[string]any), "content")
	}
}

func TestListRoomsPagination(t *testing.T) {
	ta := setupTestAPI(t)

	for i := 0; i < 10; i++ {
		ta.createRoom(t, `{"roomName":"Page"}`)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"?limit=3", 3},
		{"?limit=3&offset=7", 3},
		{"?limit=3&offset=9", 1},
		{"?limit=0", 10},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rooms := decode(t, ta.do(http.MethodGet, "/api/rooms"+tt.query, ""))["rooms"].([]any)
			assert.Len(t, rooms, tt.want)
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	ta := setupTestAPI(t)

	secretID := ta.createRoom(t, `{"roomName":"Secret","password":"hunter2"}`)["id"].(string)
	openID := ta.createRoom(t, `{"roomName":"Open"}`)["id"].(string)

	tests := []struct {
		name           string
		roomID         string
		body           string
		expectedStatus int
	}{
		{"correct password", secretID, `{"password":"hunter2"}`, http.StatusOK},
		{"wrong password", secretID, `{"password":"nope"}`, http.StatusUnauthorized},
		{"room without password", openID, `{"password":""}`, http.StatusUnauthorized},
		{"unknown room", "missing", `{"password":"hunter2"}`, http.StatusNotFound},
		{"invalid body", secretID, `nope`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ta.do(http.MethodPost, "/api/rooms/"+tt.roomID+"/verify", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestVerifyPasswordRateLimited(t *testing.T) {
	ta := setupTestAPI(t)

	ta.api.limiters = ratelimit.NewClientLimiters(0.001, 1)
	defer ta.api.limiters.Stop()

	assert.Equal(t, http.StatusNotFound, ta.do(http.MethodPost, "/api/rooms/missing/verify", `{}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, ta.do(http.MethodPost, "/api/rooms/missing/verify", `{}`).Code)
}

func TestRouter(t *testing.T) {
	ta := setupTestAPI(t)

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
	}{
		{"list rooms", http.MethodGet, "/api/rooms", "", http.StatusOK},
		{"create room", http.MethodPost, "/api/rooms", `{"roomName": "Router Test"}`, http.StatusCreated},
		{"delete rooms not allowed", http.MethodDelete, "/api/rooms", "", http.StatusMethodNotAllowed},
		{"delete room not allowed", http.MethodDelete, "/api/rooms/abc", "", http.StatusMethodNotAllowed},
		{"preflight rooms", http.MethodOptions, "/api/rooms", "", http.StatusOK},
		{"preflight room", http.MethodOptions, "/api/rooms/abc", "", http.StatusOK},
		{"preflight verify", http.MethodOptions, "/api/rooms/abc/verify", "", http.StatusOK},
		{"preflight health", http.MethodOptions, "/health", "", http.StatusOK},
		{"unknown path", http.MethodGet, "/api/nothing", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ta.do(tt.method, tt.path, tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestPreflightFromBrowser(t *testing.T) {
	ta := setupTestAPI(t)

	for _, method := range []string{http.MethodPost, http.MethodPut} {
		req := httptest.NewRequest(http.MethodOptions, "/api/rooms/abc", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", method)
		req.Header.Set("Access-Control-Request-Headers", "content-type")

		w := httptest.NewRecorder()
		ta.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, method)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), method)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), method)
	}
}

func TestRouterMountsHandlers(t *testing.T) {
	ta := setupTestAPI(t)

	called := false
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	router := NewRouter(ta.api, nil, metrics)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

type nopSink struct{}

func (nopSink) Send([]byte) bool { return true }
