package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/robertlestak/imapauth/internal/auth"
	"github.com/robertlestak/imapauth/internal/config"
	"github.com/robertlestak/imapauth/internal/imap"
	"github.com/robertlestak/imapauth/internal/server"
	"github.com/robertlestak/imapauth/internal/store"
	log "github.com/sirupsen/logrus"
)

var (
	ErrBackendUnavailable = errors.New("auth backend not available")
	ErrUsage              = errors.New("invalid argument")
)

const usage = `usage: imapauth <command> [flags]

commands:
  server      serve the HTTP gateway
  check       check a username and password
  user        manage local users: get, add, mod, del, list, count
  mailserver  serve the local user store over IMAP
  config      print the effective configuration

Run "imapauth <command> -h" for the flags of a command.
`

// Usage writes the command overview to w.
func Usage(w io.Writer) {
	fmt.Fprint(w, usage)
}

// loadBackend reads the config and builds the backend it describes.
func loadBackend(cfgPath string) (*auth.Backend, *config.Config, error) {
	l := log.WithFields(log.Fields{
		"app": "cli",
		"fn":  "loadBackend",
	})
	l.Debug("starting")
	c, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	var opts []auth.Option
	if c.LocalStore.Enabled {
		s, err := store.Open(c.LocalStore)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, auth.WithStore(s))
	}
	b := auth.New(c, opts...)
	if !b.Success() {
		return nil, nil, ErrBackendUnavailable
	}
	return b, c, nil
}

func cmdServer() error {
	l := log.WithFields(log.Fields{
		"app": "cli",
		"fn":  "cmdServer",
	})
	l.Debug("starting")
	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	cfgPath := serverCmd.String("config", os.Getenv("IMAPAUTH_CONFIG"), "path to config file")
	addr := serverCmd.String("addr", "", "address to listen on")
	port := serverCmd.String("port", "", "port to listen on")
	tlsCrtPath := serverCmd.String("tls-crt", "", "path to TLS certificate")
	tlsKeyPath := serverCmd.String("tls-key", "", "path to TLS key")
	adminGroup := serverCmd.String("admin-group", "", "group allowed to manage users")
	serverCmd.Parse(os.Args[2:])
	b, c, err := loadBackend(*cfgPath)
	if err != nil {
		return err
	}
	if *addr == "" {
		*addr = c.HTTP.Addr
	}
	if *port == "" {
		*port = c.HTTP.Port
	}
	if *tlsCrtPath == "" {
		*tlsCrtPath = c.HTTP.TLSCert
	}
	if *tlsKeyPath == "" {
		*tlsKeyPath = c.HTTP.TLSKey
	}
	if *adminGroup == "" {
		*adminGroup = c.HTTP.AdminGroup
	}
	s := server.New(b)
	s.AdminGroup = *adminGroup
	return s.Start(*addr, *port, *tlsCrtPath, *tlsKeyPath)
}

func cmdCheck() error {
	l := log.WithFields(log.Fields{
		"app": "cli",
		"fn":  "cmdCheck",
	})
	l.Debug("starting")
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
	cfgPath := checkCmd.String("config", os.Getenv("IMAPAUTH_CONFIG"), "path to config file")
	user := checkCmd.String("user", "", "user to check")
	pass := checkCmd.String("pass", os.Getenv("IMAPAUTH_PASSWORD"), "password to check")
	output := checkCmd.String("output", "json", "output format")
	checkCmd.Parse(os.Args[2:])
	if *user == "" {
		return errors.New("user is required")
	}
	b, _, err := loadBackend(*cfgPath)
	if err != nil {
		return err
	}
	ok := b.CheckPass(context.Background(), *user, *pass)
	if err := outputData(map[string]any{"user": b.CleanUser(*user), "ok": ok}, *output, "-"); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invalid credentials for %s", b.CleanUser(*user))
	}
	return nil
}

func cmdMailServer() error {
	l := log.WithFields(log.Fields{
		"app": "cli",
		"fn":  "cmdMailServer",
	})
	l.Debug("starting")
	mailCmd := flag.NewFlagSet("mailserver", flag.ExitOnError)
	cfgPath := mailCmd.String("config", os.Getenv("IMAPAUTH_CONFIG"), "path to config file")
	addr := mailCmd.String("addr", "127.0.0.1", "address to listen on")
	port := mailCmd.String("port", "1143", "port to listen on")
	tlsCrtPath := mailCmd.String("tls-crt", "", "path to TLS certificate")
	tlsKeyPath := mailCmd.String("tls-key", "", "path to TLS key")
	implicitTLS := mailCmd.Bool("ssl", false, "serve implicit TLS instead of STARTTLS")
	allowInsecure := mailCmd.Bool("allow-insecure", false, "allow LOGIN over unencrypted connections")
	mailCmd.Parse(os.Args[2:])
	c, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	s, err := store.Open(c.LocalStore)
	if err != nil {
		return err
	}
	checker := imap.CheckerFunc(func(user, pass string) bool {
		return s.CheckPass(auth.Normalize(user), pass)
	})
	return imap.Start(*addr, *port, *tlsCrtPath, *tlsKeyPath, *implicitTLS, *allowInsecure, checker)
}

func cmdConfig() error {
	configCmd := flag.NewFlagSet("config", flag.ExitOnError)
	cfgPath := configCmd.String("config", os.Getenv("IMAPAUTH_CONFIG"), "path to config file")
	output := configCmd.String("output", "yaml", "output format")
	configCmd.Parse(os.Args[2:])
	c, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return outputData(c, *output, "-")
}

func Start() error {
	l := log.WithFields(log.Fields{
		"app": "cli",
		"fn":  "Start",
	})
	l.Debug("starting")
	var arg string
	if len(os.Args) > 1 {
		arg = os.Args[1]
	}
	switch arg {
	case "server":
		return cmdServer()
	case "check":
		return cmdCheck()
	case "user":
		return cmdUser()
	case "mailserver":
		return cmdMailServer()
	case "config":
		return cmdConfig()
	default:
		return ErrUsage
	}
}
