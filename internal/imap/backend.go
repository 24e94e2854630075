package imap

import (
	"errors"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	log "github.com/sirupsen/logrus"
)

var ErrBadCredentials = errors.New("bad username or password")

// CredentialChecker decides whether a LOGIN is accepted.
type CredentialChecker interface {
	CheckPass(user, pass string) bool
}

type CheckerFunc func(user, pass string) bool

func (f CheckerFunc) CheckPass(user, pass string) bool {
	return f(user, pass)
}

// Backend accepts logins the checker approves. Every session sees one empty
// INBOX.
type Backend struct {
	Checker CredentialChecker
}

func (be *Backend) Login(ci *imap.ConnInfo, username, password string) (backend.User, error) {
	l := log.WithFields(log.Fields{
		"app":  "imap",
		"fn":   "Login",
		"user": username,
	})
	if ci != nil && ci.RemoteAddr != nil {
		l = l.WithField("remote", ci.RemoteAddr.String())
	}
	l.Debug("Login attempt")
	if be.Checker != nil && be.Checker.CheckPass(username, password) {
		l.Debug("Login successful")
		return newUser(username), nil
	}
	l.Debug("Login failed")
	return nil, ErrBadCredentials
}

func NewBackend(c CredentialChecker) *Backend {
	return &Backend{Checker: c}
}
