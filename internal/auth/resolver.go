package auth

import (
	log "github.com/sirupsen/logrus"
)

// Resolver answers profile queries, preferring stored records and falling
// back to a profile derived from the username.
type Resolver struct {
	Store        UserStore
	Domain       string
	DefaultGroup string
}

func (r *Resolver) Resolve(rawUser string) UserProfile {
	user := Normalize(rawUser)
	l := log.WithFields(log.Fields{
		"app":  "auth",
		"fn":   "Resolve",
		"user": user,
	})
	l.Debug("starting")
	if r.Store != nil {
		if p, ok := r.Store.Get(user); ok {
			l.Debug("found in local store")
			return *p
		}
	}
	l.Debug("synthesizing profile")
	return Synthesize(user, r.Domain, r.DefaultGroup)
}

// Synthesize builds the profile of a user without a stored record.
func Synthesize(user, domain, group string) UserProfile {
	return UserProfile{
		Name:   DisplayName(user),
		Mail:   user + "@" + domain,
		Groups: []string{group},
	}
}
