package auth

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/robertlestak/imapauth/internal/config"
	"github.com/robertlestak/imapauth/internal/mailauth"
	log "github.com/sirupsen/logrus"
)

// Capabilities a backend may support.
const (
	CanAddUser      = "addUser"
	CanDelUser      = "delUser"
	CanModLogin     = "modLogin"
	CanModPass      = "modPass"
	CanModName      = "modName"
	CanModMail      = "modMail"
	CanModGroups    = "modGroups"
	CanGetUsers     = "getUsers"
	CanGetUserCount = "getUserCount"
	CanGetGroups    = "getGroups"
	CanExternal     = "external"
	CanLogout       = "logout"
)

var storeCapabilities = []string{
	CanAddUser, CanDelUser, CanModLogin, CanModPass, CanModName, CanModMail,
	CanModGroups, CanGetUsers, CanGetUserCount, CanGetGroups,
}

// Backend is the authentication backend handed to the wiki. It verifies
// passwords at the mail server and, when a local store is configured,
// forwards user management to it.
type Backend struct {
	success      bool
	domain       string
	defaultGroup string
	cando        map[string]bool

	mail     MailChannel
	store    UserStore
	notifier Notifier
	validate *validator.Validate

	verifier *Verifier
	resolver *Resolver
	guard    *Guard
}

type Option func(*Backend)

// WithMailChannel replaces the IMAP channel built from the config.
func WithMailChannel(m MailChannel) Option {
	return func(b *Backend) {
		b.mail = m
	}
}

// WithStore layers the backend on a local user store.
func WithStore(s UserStore) Option {
	return func(b *Backend) {
		b.store = s
	}
}

func WithNotifier(n Notifier) Option {
	return func(b *Backend) {
		b.notifier = n
	}
}

// New builds the backend. Configuration problems are reported through the
// notifier and leave the backend disabled, see Success.
func New(c *config.Config, opts ...Option) *Backend {
	l := log.WithFields(log.Fields{
		"app": "auth",
		"fn":  "New",
	})
	l.Debug("starting")
	b := &Backend{
		notifier: LogNotifier,
		cando:    map[string]bool{CanLogout: true},
		validate: validator.New(),
	}
	for _, o := range opts {
		o(b)
	}
	if err := c.Validate(); err != nil {
		for _, e := range unjoin(err) {
			b.notifier.Notify(LevelError, e.Error())
		}
		return b
	}
	b.domain = c.Domain
	b.defaultGroup = c.DefaultGroup
	if b.mail == nil {
		b.mail = mailauth.New(c.Endpoint, c.Timeout)
	}
	if b.store != nil {
		for _, name := range storeCapabilities {
			b.cando[name] = true
		}
	}
	b.verifier = &Verifier{
		Mail:        b.mail,
		Store:       b.store,
		Domain:      c.Domain,
		UseDomain:   c.UseDomain,
		RequireUser: c.LocalStore.RequireUser,
	}
	b.resolver = &Resolver{
		Store:        b.store,
		Domain:       c.Domain,
		DefaultGroup: c.DefaultGroup,
	}
	b.guard = &Guard{Store: b.store}
	b.success = true
	return b
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// WithNotifier returns a copy of the backend that reports to n.
func (b *Backend) WithNotifier(n Notifier) *Backend {
	nb := *b
	nb.notifier = n
	return &nb
}

// Success reports whether the backend was configured correctly.
func (b *Backend) Success() bool {
	return b.success
}

func (b *Backend) CanDo(capability string) bool {
	return b.success && b.cando[capability]
}

// Capabilities returns the full capability table.
func (b *Backend) Capabilities() map[string]bool {
	caps := map[string]bool{CanExternal: false, CanLogout: b.cando[CanLogout]}
	for _, c := range storeCapabilities {
		caps[c] = b.CanDo(c)
	}
	return caps
}

// CaseSensitive is false: USER and user are the same login.
func (b *Backend) CaseSensitive() bool {
	return false
}

func (b *Backend) CleanUser(user string) string {
	return Normalize(user)
}

func (b *Backend) CheckPass(ctx context.Context, user, pass string) bool {
	if !b.success {
		return false
	}
	return b.verifier.Verify(ctx, user, pass)
}

// GetUserData returns the profile of user. The second value is false only
// when the backend is disabled.
func (b *Backend) GetUserData(user string) (UserProfile, bool) {
	if !b.success {
		return UserProfile{}, false
	}
	return b.resolver.Resolve(user), true
}

// CreateUser adds a user to the local store. Missing name and mail are
// derived from the username, missing groups default to the default group.
func (b *Backend) CreateUser(user, pass, name, mail string, groups []string) bool {
	l := log.WithFields(log.Fields{
		"app": "auth",
		"fn":  "CreateUser",
	})
	l.Debug("starting")
	if !b.CanDo(CanAddUser) {
		return false
	}
	user = Normalize(user)
	if user == "" {
		b.notifier.Notify(LevelError, "no username given")
		return false
	}
	if pass == "" {
		b.notifier.Notify(LevelError, "no password given")
		return false
	}
	if _, ok := b.store.Get(user); ok {
		b.notifier.Notify(LevelError, fmt.Sprintf("user %s already exists", user))
		return false
	}
	p := Synthesize(user, b.domain, b.defaultGroup)
	if name != "" {
		p.Name = name
	}
	if mail != "" {
		p.Mail = mail
	}
	if len(groups) > 0 {
		p.Groups = groups
	}
	if err := b.validate.Var(p.Mail, "email"); err != nil {
		b.notifier.Notify(LevelError, fmt.Sprintf("invalid e-mail address %s", p.Mail))
		return false
	}
	if err := b.guard.CheckCreate(p.Mail); err != nil {
		b.notifier.Notify(LevelError, err.Error())
		return false
	}
	if err := b.store.Create(user, pass, p); err != nil {
		l.WithError(err).Error("create failed")
		b.notifier.Notify(LevelError, err.Error())
		return false
	}
	b.notifier.Notify(LevelSuccess, fmt.Sprintf("user %s added", user))
	return true
}

// ModifyUser changes a stored user.
func (b *Backend) ModifyUser(user string, ch Changes) bool {
	l := log.WithFields(log.Fields{
		"app": "auth",
		"fn":  "ModifyUser",
	})
	l.Debug("starting")
	if !b.success || b.store == nil {
		return false
	}
	user = Normalize(user)
	for capability, set := range map[string]bool{
		CanModLogin:  ch.User != nil,
		CanModPass:   ch.Pass != nil,
		CanModName:   ch.Name != nil,
		CanModMail:   ch.Mail != nil,
		CanModGroups: ch.Groups != nil,
	} {
		if set && !b.CanDo(capability) {
			b.notifier.Notify(LevelError, fmt.Sprintf("backend cannot %s", capability))
			return false
		}
	}
	if _, ok := b.store.Get(user); !ok {
		b.notifier.Notify(LevelError, fmt.Sprintf("user %s does not exist", user))
		return false
	}
	if ch.User != nil {
		nu := Normalize(*ch.User)
		if nu == "" {
			b.notifier.Notify(LevelError, "no username given")
			return false
		}
		if nu != user {
			if _, ok := b.store.Get(nu); ok {
				b.notifier.Notify(LevelError, fmt.Sprintf("user %s already exists", nu))
				return false
			}
		}
		ch.User = &nu
	}
	if ch.Mail != nil {
		if err := b.validate.Var(*ch.Mail, "email"); err != nil {
			b.notifier.Notify(LevelError, fmt.Sprintf("invalid e-mail address %s", *ch.Mail))
			return false
		}
		if err := b.guard.CheckModify(user, *ch.Mail); err != nil {
			b.notifier.Notify(LevelError, err.Error())
			return false
		}
	}
	if ch.Pass != nil && *ch.Pass == "" {
		b.notifier.Notify(LevelError, "no password given")
		return false
	}
	if err := b.store.Modify(user, ch); err != nil {
		l.WithError(err).Error("modify failed")
		b.notifier.Notify(LevelError, err.Error())
		return false
	}
	return true
}

// DeleteUsers removes users from the local store and returns how many were
// removed.
func (b *Backend) DeleteUsers(users ...string) int {
	if !b.CanDo(CanDelUser) {
		return 0
	}
	norm := make([]string, 0, len(users))
	for _, u := range users {
		norm = append(norm, Normalize(u))
	}
	return b.store.Delete(norm...)
}

func (b *Backend) UserCount(f Filter) int {
	if !b.CanDo(CanGetUserCount) {
		return 0
	}
	return b.store.Count(f)
}

// RetrieveUsers lists stored users. A limit of 0 means no limit.
func (b *Backend) RetrieveUsers(start, limit int, f Filter) map[string]UserProfile {
	if !b.CanDo(CanGetUsers) {
		return nil
	}
	return b.store.List(start, limit, f)
}

// Groups lists every group in use plus the default group.
func (b *Backend) Groups() []string {
	if !b.success {
		return nil
	}
	seen := map[string]bool{b.defaultGroup: true}
	if b.store != nil {
		for _, p := range b.store.All() {
			for _, g := range p.Groups {
				seen[g] = true
			}
		}
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
