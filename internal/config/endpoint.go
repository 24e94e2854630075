package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultMailbox = "INBOX"
	PortIMAP       = 143
	PortIMAPS      = 993
)

var ErrUnsupportedService = errors.New("only the imap service is supported")

// Endpoint is a parsed mail server connection string.
type Endpoint struct {
	Host               string `json:"host" yaml:"host"`
	Port               int    `json:"port" yaml:"port"`
	Mailbox            string `json:"mailbox" yaml:"mailbox"`
	SSL                bool   `json:"ssl" yaml:"ssl"`
	StartTLS           bool   `json:"starttls" yaml:"starttls"`
	NoTLS              bool   `json:"notls" yaml:"notls"`
	InsecureSkipVerify bool   `json:"novalidate_cert" yaml:"novalidate_cert"`
	Debug              bool   `json:"debug" yaml:"debug"`
}

func (e *Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint reads a connection string of the form
// {host[:port][/flag...]}[mailbox]. A bare host[:port] is accepted as well.
func ParseEndpoint(s string) (*Endpoint, error) {
	l := log.WithFields(log.Fields{
		"app": "config",
		"fn":  "ParseEndpoint",
	})
	l.Debug("starting")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMissingServer
	}
	e := &Endpoint{}
	var remote string
	if strings.HasPrefix(s, "{") {
		end := strings.Index(s, "}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated server string %q", s)
		}
		remote = s[1:end]
		e.Mailbox = strings.TrimSpace(s[end+1:])
	} else {
		remote = s
	}
	parts := strings.Split(remote, "/")
	hostPort := parts[0]
	for _, flag := range parts[1:] {
		if err := e.applyFlag(flag); err != nil {
			return nil, err
		}
	}
	host, port, err := splitHostPort(hostPort)
	if err != nil {
		return nil, err
	}
	if host == "" {
		return nil, fmt.Errorf("no host in server string %q", s)
	}
	e.Host = host
	e.Port = port
	if e.Port == 0 {
		if e.SSL {
			e.Port = PortIMAPS
		} else {
			e.Port = PortIMAP
		}
	}
	if e.Mailbox == "" {
		e.Mailbox = DefaultMailbox
	}
	l.WithFields(log.Fields{
		"addr":    e.Addr(),
		"mailbox": e.Mailbox,
		"ssl":     e.SSL,
	}).Debug("parsed endpoint")
	return e, nil
}

func (e *Endpoint) applyFlag(flag string) error {
	name, value, _ := strings.Cut(strings.ToLower(strings.TrimSpace(flag)), "=")
	switch name {
	case "":
	case "service":
		if value != "imap" && value != "imap4" && value != "imap4rev1" {
			return fmt.Errorf("%w: %s", ErrUnsupportedService, value)
		}
	case "imap", "imap2", "imap2bis", "imap4", "imap4rev1":
	case "pop3", "nntp":
		return fmt.Errorf("%w: %s", ErrUnsupportedService, name)
	case "ssl":
		e.SSL = true
	case "tls":
		e.StartTLS = true
	case "notls":
		e.NoTLS = true
	case "novalidate-cert":
		e.InsecureSkipVerify = true
	case "validate-cert":
		e.InsecureSkipVerify = false
	case "debug":
		e.Debug = true
	// mailboxes are always examined read-only; these only matter to other clients
	case "readonly", "secure", "norsh", "anonymous", "user", "authuser":
	default:
		return fmt.Errorf("unknown server flag /%s", flag)
	}
	return nil
}

func splitHostPort(s string) (string, int, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") || (strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) {
		return strings.Trim(s, "[]"), 0, nil
	}
	host, ps, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server address %q: %w", s, err)
	}
	port, err := strconv.Atoi(ps)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in server address %q", s)
	}
	return host, port, nil
}
