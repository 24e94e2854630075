package auth

import (
	"context"
	"sort"
)

// UserProfile is the data the wiki needs about a user.
type UserProfile struct {
	Name   string   `json:"name" yaml:"name"`
	Mail   string   `json:"mail" yaml:"mail"`
	Groups []string `json:"grps" yaml:"grps"`
}

// Changes describes a modification of a stored user. Nil fields are left
// as they are.
type Changes struct {
	User   *string   `json:"user,omitempty"`
	Pass   *string   `json:"pass,omitempty"`
	Name   *string   `json:"name,omitempty"`
	Mail   *string   `json:"mail,omitempty"`
	Groups *[]string `json:"grps,omitempty"`
}

// Filter restricts user listings. Keys are user, name, mail and grps, values
// are case-insensitive regular expressions.
type Filter map[string]string

// UserStore is the local user database the backend can layer on. Usernames
// passed in are already normalized.
type UserStore interface {
	Get(user string) (*UserProfile, bool)
	All() map[string]UserProfile
	CheckPass(user, pass string) bool
	Create(user, pass string, p UserProfile) error
	Modify(user string, ch Changes) error
	Delete(users ...string) int
	Count(f Filter) int
	List(start, limit int, f Filter) map[string]UserProfile
}

// MailChannel performs one read-only login against the mail server. Any
// error means the credentials were not accepted through this channel.
type MailChannel interface {
	Login(ctx context.Context, login, password string) error
}

// SortedUsers returns the keys of a listing in order.
func SortedUsers(m map[string]UserProfile) []string {
	users := make([]string, 0, len(m))
	for u := range m {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
