package imap

import (
	"errors"

	"github.com/emersion/go-imap/backend"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoSuchMailbox = errors.New("no such mailbox")
	ErrReadOnly      = errors.New("mailboxes are read-only")
)

type User struct {
	username  string
	mailboxes map[string]*Mailbox
}

func newUser(username string) *User {
	u := &User{username: username}
	u.mailboxes = map[string]*Mailbox{
		InboxName: {name: InboxName, user: u},
	}
	return u
}

func (u *User) Username() string {
	return u.username
}

func (u *User) ListMailboxes(subscribed bool) (mailboxes []backend.Mailbox, err error) {
	for _, mailbox := range u.mailboxes {
		mailboxes = append(mailboxes, mailbox)
	}
	return
}

func (u *User) GetMailbox(name string) (backend.Mailbox, error) {
	l := log.WithFields(log.Fields{
		"app":  "imap",
		"fn":   "GetMailbox",
		"name": name,
	})
	l.Debug("called")
	mailbox, ok := u.mailboxes[name]
	if !ok {
		return nil, ErrNoSuchMailbox
	}
	return mailbox, nil
}

func (u *User) CreateMailbox(name string) error {
	return ErrReadOnly
}

func (u *User) DeleteMailbox(name string) error {
	return ErrReadOnly
}

func (u *User) RenameMailbox(existingName, newName string) error {
	return ErrReadOnly
}

func (u *User) Logout() error {
	l := log.WithFields(log.Fields{
		"app":  "imap",
		"fn":   "Logout",
		"user": u.username,
	})
	l.Debug("called")
	return nil
}
