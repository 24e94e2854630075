package imap

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendLogin(t *testing.T) {
	be := NewBackend(CheckerFunc(func(user, pass string) bool {
		return user == "alice" && pass == "secret"
	}))

	u, err := be.Login(nil, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username())

	_, err = be.Login(&imap.ConnInfo{}, "alice", "nope")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = (&Backend{}).Login(nil, "alice", "secret")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestUserMailboxes(t *testing.T) {
	u := newUser("alice")
	boxes, err := u.ListMailboxes(false)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, InboxName, boxes[0].Name())

	mbox, err := u.GetMailbox(InboxName)
	require.NoError(t, err)
	status, err := mbox.Status([]imap.StatusItem{imap.StatusMessages, imap.StatusUidNext})
	require.NoError(t, err)
	assert.True(t, status.ReadOnly)
	assert.Equal(t, uint32(0), status.Messages)
	assert.Equal(t, uint32(1), status.UidNext)

	_, err = u.GetMailbox("Archive")
	assert.ErrorIs(t, err, ErrNoSuchMailbox)
	assert.EqualError(t, err, "no such mailbox")
	assert.ErrorIs(t, u.CreateMailbox("Archive"), ErrReadOnly)
	assert.ErrorIs(t, mbox.Expunge(), ErrReadOnly)
}
