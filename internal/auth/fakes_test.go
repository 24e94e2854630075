package auth

import (
	"context"
	"errors"
	"sync"
)

type fakeUser struct {
	pass    string
	profile UserProfile
}

// memStore is a minimal UserStore for tests.
type memStore struct {
	mu    sync.Mutex
	users map[string]fakeUser
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]fakeUser)}
}

func (m *memStore) add(user, pass string, p UserProfile) *memStore {
	m.users[user] = fakeUser{pass: pass, profile: p}
	return m
}

func (m *memStore) Get(user string) (*UserProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[user]
	if !ok {
		return nil, false
	}
	p := u.profile
	return &p, true
}

func (m *memStore) All() map[string]UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make(map[string]UserProfile)
	for k, u := range m.users {
		all[k] = u.profile
	}
	return all
}

func (m *memStore) CheckPass(user, pass string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[user]
	return ok && u.pass == pass
}

func (m *memStore) Create(user, pass string, p UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user]; ok {
		return errors.New("exists")
	}
	m.users[user] = fakeUser{pass: pass, profile: p}
	return nil
}

func (m *memStore) Modify(user string, ch Changes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[user]
	if !ok {
		return errors.New("not found")
	}
	if ch.Pass != nil {
		u.pass = *ch.Pass
	}
	if ch.Name != nil {
		u.profile.Name = *ch.Name
	}
	if ch.Mail != nil {
		u.profile.Mail = *ch.Mail
	}
	if ch.Groups != nil {
		u.profile.Groups = *ch.Groups
	}
	if ch.User != nil && *ch.User != user {
		delete(m.users, user)
		user = *ch.User
	}
	m.users[user] = u
	return nil
}

func (m *memStore) Delete(users ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range users {
		if _, ok := m.users[u]; ok {
			delete(m.users, u)
			n++
		}
	}
	return n
}

func (m *memStore) Count(f Filter) int {
	return len(m.List(0, 0, f))
}

func (m *memStore) List(start, limit int, f Filter) map[string]UserProfile {
	all := m.All()
	out := make(map[string]UserProfile)
	for i, u := range SortedUsers(all) {
		if i < start {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out[u] = all[u]
	}
	return out
}

// fakeMail accepts the logins in accept and records every attempt.
type fakeMail struct {
	mu     sync.Mutex
	accept map[string]string
	err    error
	calls  []string
}

func (f *fakeMail) Login(ctx context.Context, login, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, login)
	if f.err != nil {
		return f.err
	}
	if p, ok := f.accept[login]; ok && p == password {
		return nil
	}
	return errors.New("NO [AUTHENTICATIONFAILED] Invalid credentials")
}

func (f *fakeMail) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
