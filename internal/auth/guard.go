package auth

import (
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
)

var ErrDuplicateEmail = errors.New("the e-mail address is already used by another user")

// Guard keeps e-mail addresses unique across the local store. It scans every
// record on each check; stores here are small.
type Guard struct {
	Store UserStore
}

// CheckCreate fails with ErrDuplicateEmail when any stored user already has
// email.
func (g *Guard) CheckCreate(email string) error {
	l := log.WithFields(log.Fields{
		"app": "auth",
		"fn":  "CheckCreate",
	})
	l.Debug("starting")
	if len(g.owners(email)) > 0 {
		l.Debug("duplicate email")
		return ErrDuplicateEmail
	}
	return nil
}

// CheckModify fails with ErrDuplicateEmail when email belongs to a stored
// user other than user.
func (g *Guard) CheckModify(user, email string) error {
	l := log.WithFields(log.Fields{
		"app":  "auth",
		"fn":   "CheckModify",
		"user": user,
	})
	l.Debug("starting")
	user = Normalize(user)
	for _, owner := range g.owners(email) {
		if Normalize(owner) != user {
			l.WithField("owner", owner).Debug("duplicate email")
			return ErrDuplicateEmail
		}
	}
	return nil
}

func (g *Guard) owners(email string) []string {
	if g.Store == nil {
		return nil
	}
	email = strings.ToLower(email)
	var owners []string
	for user, p := range g.Store.All() {
		if strings.ToLower(p.Mail) == email {
			owners = append(owners, user)
		}
	}
	return owners
}
