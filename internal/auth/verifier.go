package auth

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Verifier checks credentials against the mail server first and the local
// store second.
type Verifier struct {
	Mail MailChannel
	// Store is nil when no local store is layered underneath.
	Store     UserStore
	Domain    string
	UseDomain bool
	// RequireUser refuses users the store does not know before the mail
	// server is contacted. It has no effect without a Store.
	RequireUser bool
}

// LoginIdentity is the name sent to the mail server for a normalized user.
func (v *Verifier) LoginIdentity(user string) string {
	if v.UseDomain {
		return user + "@" + v.Domain
	}
	return user
}

// Verify reports whether pass is valid for rawUser. It never returns an
// error: unreachable servers, protocol failures and rejected logins all
// count as a failed check.
func (v *Verifier) Verify(ctx context.Context, rawUser, pass string) bool {
	user := Normalize(rawUser)
	l := log.WithFields(log.Fields{
		"app":  "auth",
		"fn":   "Verify",
		"user": user,
	})
	l.Debug("starting")
	if v.Store != nil && v.RequireUser {
		if _, ok := v.Store.Get(user); !ok {
			l.Debug("user not in local store")
			return false
		}
	}
	if v.Mail != nil {
		login := v.LoginIdentity(user)
		err := v.Mail.Login(ctx, login, pass)
		if err == nil {
			l.WithField("login", login).Debug("accepted by mail server")
			return true
		}
		l.WithError(err).WithField("login", login).Debug("mail server login failed")
	}
	if v.Store == nil {
		return false
	}
	ok := v.Store.CheckPass(user, pass)
	l.WithField("ok", ok).Debug("checked local store")
	return ok
}
