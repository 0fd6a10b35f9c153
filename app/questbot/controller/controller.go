package controller

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/questbot/questbot/app/questbot/types"
	"github.com/questbot/questbot/pkg/utils"
)

type Controller struct {
	App        *types.App
	AdminToken string
	AuthUser   string
	AuthHash   []byte
	JWTSecret  []byte

	// FeedClients tracks connected live feed clients by connection id.
	FeedClients *xsync.Map[string, FeedClient]
}

// FeedClient describes one connected live feed client.
type FeedClient struct {
	RemoteAddr  string    `json:"remoteAddr"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// NewController returns a new controller. HTTP authentication is disabled unless
// ADMIN_TOKEN, or ADMIN_PASSWORD together with SESSION_SECRET, are set.
func NewController(app *types.App) *Controller {
	adminToken := utils.Env("ADMIN_TOKEN", "")
	adminUser := utils.Env("ADMIN_USER", "admin")
	adminPass := utils.Env("ADMIN_PASSWORD", "")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", ""))

	var phash []byte
	if adminPass != "" {
		phash, _ = utils.HashOrRead(adminPass)
	}

	if app.Logger != nil {
		if adminToken == "" {
			app.Logger.Warn("ADMIN_TOKEN not set - bearer authentication is disabled")
		}
		if adminPass == "" || len(jwtSecret) == 0 {
			app.Logger.Warn("ADMIN_PASSWORD or SESSION_SECRET not set - session login is disabled")
		}
	}

	return &Controller{
		App:         app,
		AdminToken:  adminToken,
		AuthUser:    adminUser,
		AuthHash:    phash,
		JWTSecret:   jwtSecret,
		FeedClients: xsync.NewMap[string, FeedClient](),
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(c.HandleHealthz)).Methods(http.MethodGet)
	r.Handle("/readyz", http.HandlerFunc(c.HandleReadyz)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/login", c.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", c.HandleLogout).Methods(http.MethodPost)

	r.Handle("/commands", c.RequireAuth(http.HandlerFunc(c.HandleCommand))).Methods(http.MethodPost)
	r.Handle("/layout", c.RequireAuth(http.HandlerFunc(c.HandleLayout))).Methods(http.MethodGet)

	// Live feed of applied ledger outcomes
	r.HandleFunc("/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}
