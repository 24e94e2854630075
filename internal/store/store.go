package store

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/robertlestak/imapauth/internal/auth"
	"github.com/robertlestak/imapauth/internal/config"
	"github.com/robertlestak/imapauth/internal/persist"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// Record is one stored user.
type Record struct {
	User   string   `json:"user"`
	Hash   string   `json:"pass"`
	Name   string   `json:"name"`
	Mail   string   `json:"mail"`
	Groups []string `json:"grps"`
}

func (r *Record) Profile() *auth.UserProfile {
	return &auth.UserProfile{
		Name:   r.Name,
		Mail:   r.Mail,
		Groups: append([]string(nil), r.Groups...),
	}
}

var _ auth.UserStore = (*Store)(nil)

// Store is a local user database on top of a persist.Driver. Passwords are
// kept as bcrypt hashes.
type Store struct {
	Driver persist.Driver
	Cost   int

	mu sync.Mutex
}

func New(d persist.Driver) *Store {
	return &Store{Driver: d, Cost: bcrypt.DefaultCost}
}

// Open initializes the configured driver.
func Open(c config.LocalStore) (*Store, error) {
	l := log.WithFields(log.Fields{
		"app":    "store",
		"fn":     "Open",
		"driver": c.Driver,
	})
	l.Debug("starting")
	d, err := persist.LoadDriver(persist.DriverName(c.Driver), c.DataDir)
	if err != nil {
		return nil, err
	}
	if err := d.Init(); err != nil {
		return nil, fmt.Errorf("init %s driver: %w", c.Driver, err)
	}
	return New(d), nil
}

func (s *Store) load(user string) (*Record, error) {
	r := &Record{}
	err := s.Driver.Load(s.Driver.UserDir(), user, r)
	if errors.Is(err, persist.ErrNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) Get(user string) (*auth.UserProfile, bool) {
	l := log.WithFields(log.Fields{
		"app":  "store",
		"fn":   "Get",
		"user": user,
	})
	r, err := s.load(user)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			l.WithError(err).Error("load failed")
		}
		return nil, false
	}
	return r.Profile(), true
}

func (s *Store) records() []*Record {
	l := log.WithFields(log.Fields{
		"app": "store",
		"fn":  "records",
	})
	ids, err := s.Driver.DirList(s.Driver.UserDir())
	if err != nil {
		l.WithError(err).Error("list failed")
		return nil
	}
	sort.Strings(ids)
	recs := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.load(id)
		if err != nil {
			l.WithError(err).WithField("user", id).Error("load failed")
			continue
		}
		if r.User == "" {
			r.User = id
		}
		recs = append(recs, r)
	}
	return recs
}

func (s *Store) All() map[string]auth.UserProfile {
	all := make(map[string]auth.UserProfile)
	for _, r := range s.records() {
		all[r.User] = *r.Profile()
	}
	return all
}

func (s *Store) CheckPass(user, pass string) bool {
	r, err := s.load(user)
	if err != nil || r.Hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(r.Hash), []byte(pass)) == nil
}

func (s *Store) hash(pass string) (string, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pass), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (s *Store) Create(user, pass string, p auth.UserProfile) error {
	l := log.WithFields(log.Fields{
		"app":  "store",
		"fn":   "Create",
		"user": user,
	})
	l.Debug("starting")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.load(user); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	h, err := s.hash(pass)
	if err != nil {
		return err
	}
	r := &Record{
		User:   user,
		Hash:   h,
		Name:   p.Name,
		Mail:   p.Mail,
		Groups: p.Groups,
	}
	return s.Driver.Store(s.Driver.UserDir(), user, r)
}

// Modify applies ch to user. A changed login moves the record.
func (s *Store) Modify(user string, ch auth.Changes) error {
	l := log.WithFields(log.Fields{
		"app":  "store",
		"fn":   "Modify",
		"user": user,
	})
	l.Debug("starting")
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.load(user)
	if err != nil {
		return err
	}
	if ch.Pass != nil {
		h, err := s.hash(*ch.Pass)
		if err != nil {
			return err
		}
		r.Hash = h
	}
	if ch.Name != nil {
		r.Name = *ch.Name
	}
	if ch.Mail != nil {
		r.Mail = *ch.Mail
	}
	if ch.Groups != nil {
		r.Groups = *ch.Groups
	}
	if ch.User == nil || *ch.User == user {
		return s.Driver.Store(s.Driver.UserDir(), user, r)
	}
	newUser := *ch.User
	if _, err := s.load(newUser); err == nil {
		return ErrUserExists
	}
	r.User = newUser
	if err := s.Driver.Store(s.Driver.UserDir(), newUser, r); err != nil {
		return err
	}
	l.WithField("new", newUser).Debug("renamed")
	return s.Driver.Delete(s.Driver.UserDir(), user)
}

func (s *Store) Delete(users ...string) int {
	l := log.WithFields(log.Fields{
		"app": "store",
		"fn":  "Delete",
	})
	l.Debug("starting")
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range users {
		if err := s.Driver.Delete(s.Driver.UserDir(), u); err != nil {
			if !errors.Is(err, persist.ErrNotFound) {
				l.WithError(err).WithField("user", u).Error("delete failed")
			}
			continue
		}
		n++
	}
	return n
}

func (s *Store) Count(f auth.Filter) int {
	m := newMatcher(f)
	n := 0
	for _, r := range s.records() {
		if m.match(r) {
			n++
		}
	}
	return n
}

// List returns matching users ordered by name, skipping the first start.
// A limit of 0 means no limit.
func (s *Store) List(start, limit int, f auth.Filter) map[string]auth.UserProfile {
	m := newMatcher(f)
	out := make(map[string]auth.UserProfile)
	i := 0
	for _, r := range s.records() {
		if !m.match(r) {
			continue
		}
		if i >= start {
			out[r.User] = *r.Profile()
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		i++
	}
	return out
}

type matcher map[string]*regexp.Regexp

func newMatcher(f auth.Filter) matcher {
	m := make(matcher)
	for k, v := range f {
		if v == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + v)
		if err != nil {
			re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(v))
		}
		m[strings.ToLower(k)] = re
	}
	return m
}

func (m matcher) match(r *Record) bool {
	for k, re := range m {
		switch k {
		case "user":
			if !re.MatchString(r.User) {
				return false
			}
		case "name":
			if !re.MatchString(r.Name) {
				return false
			}
		case "mail":
			if !re.MatchString(r.Mail) {
				return false
			}
		case "grps":
			found := false
			for _, g := range r.Groups {
				if re.MatchString(g) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}
