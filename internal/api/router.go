package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter mounts the REST handlers. wsHandler and metricsHandler are mounted
// at /ws and /metrics when not nil. CORS applies to every response, matched
// route or not.
func NewRouter(a *API, wsHandler, metricsHandler http.Handler) http.Handler {
	r := mux.NewRouter()

	if wsHandler != nil {
		r.Handle("/ws", wsHandler)
	}
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", a.StatsHandler).Methods(http.MethodGet)
	api.HandleFunc("/rooms", a.ListRoomsHandler).Methods(http.MethodGet)
	api.HandleFunc("/rooms", a.CreateRoomHandler).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}", a.GetRoomHandler).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomId}", a.UpdateCodeHandler).Methods(http.MethodPut)
	api.HandleFunc("/rooms/{roomId}/verify", a.VerifyPasswordHandler).Methods(http.MethodPost)

	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.MethodNotAllowedHandler = notAllowed
	api.MethodNotAllowedHandler = notAllowed

	return corsMiddleware(r)
}

func corsHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corsHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
