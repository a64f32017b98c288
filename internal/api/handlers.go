// Package api serves the REST surface next to the websocket endpoint: room
// metadata, password checks, health and stats.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/manpreetbhatti/codetogether/internal/db"
	"github.com/manpreetbhatti/codetogether/internal/logging"
	"github.com/manpreetbhatti/codetogether/internal/ratelimit"
	"github.com/manpreetbhatti/codetogether/internal/session"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// API holds the dependencies of the REST handlers.
type API struct {
	database db.Database
	manager  *session.Manager
	limiters *ratelimit.ClientLimiters
	logger   logging.Logger
	validate *validator.Validate
}

// New creates an API. limiters bounds password checks per remote address and
// may be nil.
func New(database db.Database, manager *session.Manager, limiters *ratelimit.ClientLimiters, logger logging.Logger) *API {
	if logger == nil {
		logger = logging.New("api")
	}
	return &API{
		database: database,
		manager:  manager,
		limiters: limiters,
		logger:   logger,
		validate: validator.New(),
	}
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorf("encode JSON response: %v", err)
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"message": message})
}

// HealthHandler reports liveness.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsHandler reports the active working set and the stored room count.
func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	active := a.manager.Stats()
	stats := map[string]interface{}{
		"activeRooms":        active.ActiveRooms,
		"activeParticipants": active.ActiveParticipants,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	}

	total, err := a.database.CountRooms(r.Context())
	if err != nil {
		a.logger.Warnf("count rooms: %v", err)
	} else {
		stats["totalRooms"] = total
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

// RoomResponse is the public form of a room. The password hash is never
// exposed.
type RoomResponse struct {
	ID          string    `json:"id"`
	RoomName    string    `json:"roomName"`
	Language    string    `json:"language"`
	HasPassword bool      `json:"hasPassword"`
	Content     *string   `json:"content,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ActiveUsers int       `json:"activeUsers"`
}

func (a *API) roomResponse(room *db.Room, withContent bool) RoomResponse {
	resp := RoomResponse{
		ID:          room.ID,
		RoomName:    room.Name,
		Language:    room.Language,
		HasPassword: room.PasswordHash != "",
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
		ActiveUsers: len(a.manager.Roster(room.ID)),
	}
	if withContent {
		content := room.Content
		resp.Content = &content
	}
	return resp
}

// CreateRoomRequest is the body of POST /api/rooms.
type CreateRoomRequest struct {
	RoomName string `json:"roomName" validate:"required,max=100"`
	Password string `json:"password" validate:"max=72"`
	Language string `json:"language" validate:"max=32"`
}

// CreateRoomHandler stores a new room with a generated id.
func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid room details")
		return
	}

	room := &db.Room{
		ID:       uuid.NewString(),
		Name:     req.RoomName,
		Language: req.Language,
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			a.logger.Errorf("hash room password: %v", err)
			a.errorResponse(w, http.StatusInternalServerError, "Failed to create room")
			return
		}
		room.PasswordHash = string(hash)
	}

	if err := a.database.CreateRoom(r.Context(), room); err != nil {
		a.logger.Errorf("create room: %v", err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	a.logger.Infof("room %s created", room.ID)
	a.jsonResponse(w, http.StatusCreated, a.roomResponse(room, true))
}

// ListRoomsHandler returns rooms newest first.
func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	rooms, err := a.database.ListRooms(r.Context(), limit, offset)
	if err != nil {
		a.logger.Errorf("list rooms: %v", err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to list rooms")
		return
	}

	response := make([]RoomResponse, len(rooms))
	for i, room := range rooms {
		response[i] = a.roomResponse(room, false)
	}

	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms":  response,
		"limit":  limit,
		"offset": offset,
	})
}

// GetRoomHandler returns one room including its content, live when the room
// is active.
func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	room, err := a.database.FindRoom(r.Context(), roomID)
	if errors.Is(err, db.ErrRoomNotFound) {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		a.logger.Errorf("get room %s: %v", roomID, err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}

	// An active room's text lives in the cache until the next flush.
	if doc, ok := a.manager.Cache().Get(roomID); ok {
		doc.Lock()
		room.Content = doc.Content()
		doc.Unlock()
	}

	a.jsonResponse(w, http.StatusOK, a.roomResponse(room, true))
}

// UpdateCodeRequest is the body of PUT /api/rooms/{roomId}.
type UpdateCodeRequest struct {
	Code *string `json:"code" validate:"required"`
}

// UpdateCodeHandler overwrites the stored content of a room nobody is editing.
// Active rooms are written through the websocket save message instead.
func (a *API) UpdateCodeHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	var req UpdateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || a.validate.Struct(req) != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, active := a.manager.Cache().Get(roomID); active {
		a.errorResponse(w, http.StatusConflict, "Room is active")
		return
	}

	err := a.database.SaveContent(r.Context(), roomID, *req.Code)
	if errors.Is(err, db.ErrRoomNotFound) {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		a.logger.Errorf("update room %s: %v", roomID, err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to save code")
		return
	}

	room, err := a.database.FindRoom(r.Context(), roomID)
	if err != nil {
		a.logger.Errorf("get room %s: %v", roomID, err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	a.jsonResponse(w, http.StatusOK, a.roomResponse(room, true))
}

// VerifyPasswordRequest is the body of POST /api/rooms/{roomId}/verify.
type VerifyPasswordRequest struct {
	Password string `json:"password"`
}

// VerifyPasswordHandler checks a room password. Rooms without a password
// never verify.
func (a *API) VerifyPasswordHandler(w http.ResponseWriter, r *http.Request) {
	if a.limiters != nil && !a.limiters.Get(remoteHost(r)).Allow() {
		a.errorResponse(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	roomID := mux.Vars(r)["roomId"]

	var req VerifyPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	room, err := a.database.FindRoom(r.Context(), roomID)
	if errors.Is(err, db.ErrRoomNotFound) {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		a.logger.Errorf("get room %s: %v", roomID, err)
		a.errorResponse(w, http.StatusInternalServerError, "Server error")
		return
	}

	if room.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(req.Password)) != nil {
		a.errorResponse(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	a.jsonResponse(w, http.StatusOK, map[string]string{"message": "Password verified"})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
