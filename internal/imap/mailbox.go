package imap

import (
	"time"

	"github.com/emersion/go-imap"
)

const (
	InboxName = "INBOX"
	Delimiter = "/"
)

// Mailbox is always empty and refuses writes. Logins only need something to
// EXAMINE.
type Mailbox struct {
	name string
	user *User
}

func (mbox *Mailbox) Name() string {
	return mbox.name
}

func (mbox *Mailbox) Info() (*imap.MailboxInfo, error) {
	return &imap.MailboxInfo{
		Attributes: []string{imap.NoInferiorsAttr},
		Delimiter:  Delimiter,
		Name:       mbox.name,
	}, nil
}

func (mbox *Mailbox) Status(items []imap.StatusItem) (*imap.MailboxStatus, error) {
	status := imap.NewMailboxStatus(mbox.name, items)
	status.ReadOnly = true
	status.Flags = []string{}
	status.PermanentFlags = []string{}
	for _, name := range items {
		switch name {
		case imap.StatusMessages:
			status.Messages = 0
		case imap.StatusUidNext:
			status.UidNext = 1
		case imap.StatusUidValidity:
			status.UidValidity = 1
		case imap.StatusRecent:
			status.Recent = 0
		case imap.StatusUnseen:
			status.Unseen = 0
		}
	}
	return status, nil
}

func (mbox *Mailbox) SetSubscribed(subscribed bool) error {
	return nil
}

func (mbox *Mailbox) Check() error {
	return nil
}

func (mbox *Mailbox) ListMessages(uid bool, seqSet *imap.SeqSet, items []imap.FetchItem, ch chan<- *imap.Message) error {
	close(ch)
	return nil
}

func (mbox *Mailbox) SearchMessages(uid bool, criteria *imap.SearchCriteria) ([]uint32, error) {
	return nil, nil
}

func (mbox *Mailbox) CreateMessage(flags []string, date time.Time, body imap.Literal) error {
	return ErrReadOnly
}

func (mbox *Mailbox) UpdateMessagesFlags(uid bool, seqset *imap.SeqSet, op imap.FlagsOp, flags []string) error {
	return ErrReadOnly
}

func (mbox *Mailbox) CopyMessages(uid bool, seqset *imap.SeqSet, destName string) error {
	return ErrReadOnly
}

func (mbox *Mailbox) Expunge() error {
	return ErrReadOnly
}
