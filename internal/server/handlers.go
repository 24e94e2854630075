package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/robertlestak/imapauth/internal/auth"
	"github.com/robertlestak/imapauth/internal/utils"
	log "github.com/sirupsen/logrus"
)

type credentials struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

type newUser struct {
	User   string   `json:"user"`
	Pass   string   `json:"pass"`
	Name   string   `json:"name"`
	Mail   string   `json:"mail"`
	Groups []string `json:"grps"`
}

type mutationResult struct {
	OK       bool           `json:"ok"`
	Messages []auth.Message `json:"messages,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	l := log.WithFields(log.Fields{
		"app": "server",
		"fn":  "writeJSON",
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l.WithError(err).Error("failed to encode json")
	}
}

func (s *Server) available(w http.ResponseWriter) bool {
	if !s.Backend.Success() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return false
	}
	return true
}

// HandleBasicAuth answers 200 for valid HTTP Basic credentials, for use as
// an nginx auth_request target.
func (s *Server) HandleBasicAuth(w http.ResponseWriter, r *http.Request) {
	l := log.WithFields(log.Fields{
		"app": "server",
		"fn":  "HandleBasicAuth",
	})
	l.Debug("starting")
	user, pass, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="imapauth"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !s.Backend.CheckPass(r.Context(), user, pass) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("X-Auth-User", s.Backend.CleanUser(user))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) HandleCheckPass(w http.ResponseWriter, r *http.Request) {
	l := log.WithFields(log.Fields{
		"app": "server",
		"fn":  "HandleCheckPass",
	})
	l.Debug("starting")
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		l.WithError(err).Debug("failed to decode json")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ok := s.Backend.CheckPass(r.Context(), c.User, c.Pass)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   ok,
		"user": s.Backend.CleanUser(c.User),
	})
}

func (s *Server) HandleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       s.Backend.Success(),
		"caseSensitive": s.Backend.CaseSensitive(),
		"cando":         s.Backend.Capabilities(),
	})
}

func (s *Server) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Backend.GetUserData(mux.Vars(r)["user"])
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func filterFromRequest(r *http.Request) auth.Filter {
	f := auth.Filter{}
	for _, k := range []string{"user", "name", "mail", "grps"} {
		if v := r.URL.Query().Get(k); v != "" {
			f[k] = v
		}
	}
	return f
}

func (s *Server) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	if !s.Backend.CanDo(auth.CanGetUsers) {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	start, limit := utils.StartAndLimitFromRequest(r)
	writeJSON(w, http.StatusOK, s.Backend.RetrieveUsers(start, limit, filterFromRequest(r)))
}

func (s *Server) HandleCountUsers(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	if !s.Backend.CanDo(auth.CanGetUserCount) {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"count": s.Backend.UserCount(filterFromRequest(r)),
	})
}

func (s *Server) HandleGroups(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.Backend.Groups())
}

func (s *Server) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	l := log.WithFields(log.Fields{
		"app": "server",
		"fn":  "HandleCreateUser",
	})
	l.Debug("starting")
	if !s.available(w) {
		return
	}
	if !s.Backend.CanDo(auth.CanAddUser) {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	var nu newUser
	if err := json.NewDecoder(r.Body).Decode(&nu); err != nil {
		l.WithError(err).Debug("failed to decode json")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	msgs := &auth.Messages{}
	ok := s.Backend.WithNotifier(msgs).CreateUser(nu.User, nu.Pass, nu.Name, nu.Mail, nu.Groups)
	status := http.StatusCreated
	if !ok {
		status = http.StatusConflict
	}
	writeJSON(w, status, mutationResult{OK: ok, Messages: msgs.List()})
}

// canModify reports whether any field can be changed. ModifyUser checks the
// fields of each request.
func (s *Server) canModify() bool {
	for _, c := range []string{
		auth.CanModLogin, auth.CanModPass, auth.CanModName, auth.CanModMail, auth.CanModGroups,
	} {
		if s.Backend.CanDo(c) {
			return true
		}
	}
	return false
}

func (s *Server) HandleModifyUser(w http.ResponseWriter, r *http.Request) {
	l := log.WithFields(log.Fields{
		"app": "server",
		"fn":  "HandleModifyUser",
	})
	l.Debug("starting")
	if !s.available(w) {
		return
	}
	if !s.canModify() {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	var ch auth.Changes
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		l.WithError(err).Debug("failed to decode json")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	msgs := &auth.Messages{}
	ok := s.Backend.WithNotifier(msgs).ModifyUser(mux.Vars(r)["user"], ch)
	status := http.StatusOK
	if !ok {
		status = http.StatusConflict
	}
	writeJSON(w, status, mutationResult{OK: ok, Messages: msgs.List()})
}

func (s *Server) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	if !s.Backend.CanDo(auth.CanDelUser) {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	n := s.Backend.DeleteUsers(mux.Vars(r)["user"])
	status := http.StatusOK
	if n == 0 {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]int{"deleted": n})
}
