package auth

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Level of a user facing message.
type Level int

const (
	LevelError   Level = -1
	LevelInfo    Level = 0
	LevelSuccess Level = 1
)

func (lv Level) String() string {
	switch lv {
	case LevelError:
		return "error"
	case LevelSuccess:
		return "success"
	default:
		return "info"
	}
}

func (lv Level) MarshalText() ([]byte, error) {
	return []byte(lv.String()), nil
}

func (lv *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "error":
		*lv = LevelError
	case "info":
		*lv = LevelInfo
	case "success":
		*lv = LevelSuccess
	default:
		return fmt.Errorf("unknown message level %q", text)
	}
	return nil
}

// Notifier receives messages meant for the person operating the wiki.
type Notifier interface {
	Notify(lv Level, msg string)
}

type NotifierFunc func(lv Level, msg string)

func (f NotifierFunc) Notify(lv Level, msg string) {
	f(lv, msg)
}

// LogNotifier writes messages to the process log.
var LogNotifier = NotifierFunc(func(lv Level, msg string) {
	l := log.WithFields(log.Fields{
		"app":   "auth",
		"fn":    "Notify",
		"level": lv.String(),
	})
	if lv == LevelError {
		l.Error(msg)
		return
	}
	l.Info(msg)
})

type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Messages collects notifications, for example for one HTTP request.
type Messages struct {
	mu   sync.Mutex
	list []Message
}

func (m *Messages) Notify(lv Level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append(m.list, Message{Level: lv, Text: msg})
}

func (m *Messages) List() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.list))
	copy(out, m.list)
	return out
}
