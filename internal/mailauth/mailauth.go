package mailauth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/robertlestak/imapauth/internal/config"
	log "github.com/sirupsen/logrus"
)

var ErrNoStartTLS = errors.New("server does not support STARTTLS")

// Channel logs in to one IMAP server. Each Login uses its own connection,
// which is closed before Login returns.
type Channel struct {
	Endpoint *config.Endpoint
	Timeout  time.Duration
	// TLSConfig overrides the TLS settings derived from Endpoint.
	TLSConfig *tls.Config
}

func New(e *config.Endpoint, timeout time.Duration) *Channel {
	return &Channel{
		Endpoint: e,
		Timeout:  timeout,
	}
}

func (c *Channel) tlsConfig() *tls.Config {
	if c.TLSConfig != nil {
		return c.TLSConfig.Clone()
	}
	return &tls.Config{
		ServerName:         c.Endpoint.Host,
		InsecureSkipVerify: c.Endpoint.InsecureSkipVerify,
	}
}

func (c *Channel) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Endpoint.Addr())
	if err != nil {
		return nil, err
	}
	if !c.Endpoint.SSL {
		return conn, nil
	}
	tc := tls.Client(conn, c.tlsConfig())
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tc, nil
}

// Login authenticates as login and opens the configured mailbox read-only.
// A nil error means the server accepted the credentials.
func (c *Channel) Login(ctx context.Context, login, password string) error {
	l := log.WithFields(log.Fields{
		"app":   "mailauth",
		"fn":    "Login",
		"addr":  c.Endpoint.Addr(),
		"login": login,
	})
	l.Debug("starting")
	// the /debug flag raises the channel's own log lines to info
	trace := l.Debug
	if c.Endpoint.Debug {
		trace = l.Info
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	// a cancelled context aborts whatever command is in flight
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	cl, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	cl.Timeout = c.Timeout
	defer func() {
		if err := cl.Logout(); err != nil {
			l.WithError(err).Debug("logout failed")
		}
		conn.Close()
	}()
	if err := c.startTLS(cl); err != nil {
		return err
	}
	if err := cl.Login(login, password); err != nil {
		trace("login rejected")
		return fmt.Errorf("login: %w", err)
	}
	if _, err := cl.Select(c.Endpoint.Mailbox, true); err != nil {
		return fmt.Errorf("examine %s: %w", c.Endpoint.Mailbox, err)
	}
	trace("login accepted")
	return nil
}

func (c *Channel) startTLS(cl *client.Client) error {
	if c.Endpoint.SSL || c.Endpoint.NoTLS {
		return nil
	}
	ok, err := cl.SupportStartTLS()
	if err != nil {
		return fmt.Errorf("capability: %w", err)
	}
	if !ok {
		if c.Endpoint.StartTLS {
			return ErrNoStartTLS
		}
		return nil
	}
	if err := cl.StartTLS(c.tlsConfig()); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	return nil
}
