package server

import (
	"net"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/gorilla/mux"
	"github.com/robertlestak/imapauth/internal/auth"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	Backend *auth.Backend
	// AdminGroup members may use the user management routes. Empty
	// disables them.
	AdminGroup string
}

func New(b *auth.Backend) *Server {
	return &Server{Backend: b}
}

func handlehealthcheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Router returns the routes without CORS handling.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", handlehealthcheck).Methods("GET")

	// Authentication
	r.HandleFunc("/auth", s.HandleBasicAuth).Methods("GET")
	r.HandleFunc("/auth/check", s.HandleCheckPass).Methods("POST")
	r.HandleFunc("/capabilities", s.HandleCapabilities).Methods("GET")

	// User data and management
	admin := r.NewRoute().Subrouter()
	admin.Use(s.RequireAdmin)
	admin.HandleFunc("/users", s.HandleListUsers).Methods("GET")
	admin.HandleFunc("/users", s.HandleCreateUser).Methods("POST")
	admin.HandleFunc("/users/count", s.HandleCountUsers).Methods("GET")
	admin.HandleFunc("/users/{user}", s.HandleGetUser).Methods("GET")
	admin.HandleFunc("/users/{user}", s.HandleModifyUser).Methods("PUT")
	admin.HandleFunc("/users/{user}", s.HandleDeleteUser).Methods("DELETE")
	admin.HandleFunc("/groups", s.HandleGroups).Methods("GET")
	return r
}

// RequireAdmin lets a request through only with HTTP Basic credentials of
// a member of AdminGroup.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := log.WithFields(log.Fields{
			"app":  "server",
			"fn":   "RequireAdmin",
			"path": r.URL.Path,
		})
		if !s.available(w) {
			return
		}
		if s.AdminGroup == "" {
			l.Debug("no admin group configured")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !s.Backend.CheckPass(r.Context(), user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="imapauth"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		p, ok := s.Backend.GetUserData(user)
		if !ok || !slices.Contains(p.Groups, s.AdminGroup) {
			l.WithField("user", s.Backend.CleanUser(user)).Info("not an admin")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler wraps the router in CORS handling. CORS_LIST holds a comma
// separated list of allowed origins. Without it all origins are allowed but
// credentials are not.
func (s *Server) Handler() http.Handler {
	var corsList []string
	credentials := false
	if os.Getenv("CORS_LIST") != "" {
		corsList = strings.Split(os.Getenv("CORS_LIST"), ",")
		credentials = true
	} else {
		corsList = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   corsList,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PUT"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: credentials,
		Debug:            os.Getenv("CORS_DEBUG") == "true",
	})
	return c.Handler(s.Router())
}

func (s *Server) Start(addr, port, tlsCrtPath, tlsKeyPath string) error {
	l := log.WithFields(log.Fields{
		"app": "server",
		"fn":  "Start",
	})
	l.Debug("starting")
	sAddr := net.JoinHostPort(addr, port)
	h := s.Handler()
	l.WithField("addr", sAddr).Info("listening")
	if tlsCrtPath != "" && tlsKeyPath != "" {
		l.Debug("starting server with TLS")
		return http.ListenAndServeTLS(sAddr, tlsCrtPath, tlsKeyPath, h)
	}
	l.Debug("starting server without TLS")
	return http.ListenAndServe(sAddr, h)
}
