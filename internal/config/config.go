package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingServer = errors.New("IMAP auth is missing server configuration")
	ErrMissingDomain = errors.New("IMAP auth is missing domain configuration")
)

const (
	DefaultGroup   = "user"
	DefaultTimeout = 10 * time.Second
	DefaultDataDir = "data"
	DefaultPort    = "8080"
	EnvPrefix      = "IMAPAUTH_"
)

// Config holds everything the auth backend and its frontends need. It is
// read once at startup and not modified afterwards.
type Config struct {
	// Server is the mail server connection string, see ParseEndpoint.
	Server string `yaml:"server" json:"server" validate:"required"`
	// Domain is the mail domain of the users, the part after the @.
	Domain string `yaml:"domain" json:"domain" validate:"required"`
	// UseDomain makes the mail server login the full address instead of the
	// local part.
	UseDomain    bool          `yaml:"usedomain" json:"usedomain"`
	DefaultGroup string        `yaml:"defaultgroup" json:"defaultgroup"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	LocalStore   LocalStore    `yaml:"localstore" json:"localstore"`
	HTTP         HTTP          `yaml:"http" json:"http"`

	// Endpoint is filled in by Validate.
	Endpoint *Endpoint `yaml:"-" json:"endpoint,omitempty"`
}

type LocalStore struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Driver  string `yaml:"driver" json:"driver" validate:"omitempty,oneof=fs memory"`
	DataDir string `yaml:"datadir" json:"datadir"`
	// RequireUser rejects users unknown to the store before the mail
	// server is asked.
	RequireUser bool `yaml:"requireuser" json:"requireuser"`
}

type HTTP struct {
	Addr    string `yaml:"addr" json:"addr"`
	Port    string `yaml:"port" json:"port"`
	TLSCert string `yaml:"tls_crt" json:"tls_crt"`
	TLSKey  string `yaml:"tls_key" json:"tls_key"`
	// AdminGroup members may use the user management routes. The routes
	// answer 403 while it is empty.
	AdminGroup string `yaml:"admingroup" json:"admingroup"`
}

func Default() *Config {
	return &Config{
		DefaultGroup: DefaultGroup,
		Timeout:      DefaultTimeout,
		LocalStore: LocalStore{
			Driver:      "fs",
			DataDir:     DefaultDataDir,
			RequireUser: true,
		},
		HTTP: HTTP{
			Port: DefaultPort,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	l := log.WithFields(log.Fields{
		"app":  "config",
		"fn":   "Load",
		"path": path,
	})
	l.Debug("starting")
	c := Default()
	if path != "" {
		bd, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := c.Parse(bd); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Parse(bd []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(bd))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPrefix + "SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv(EnvPrefix + "DOMAIN"); v != "" {
		c.Domain = v
	}
	if v := os.Getenv(EnvPrefix + "USEDOMAIN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sUSEDOMAIN: %w", EnvPrefix, err)
		}
		c.UseDomain = b
	}
	if v := os.Getenv(EnvPrefix + "DEFAULTGROUP"); v != "" {
		c.DefaultGroup = v
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(EnvPrefix + "LOCALSTORE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOCALSTORE: %w", EnvPrefix, err)
		}
		c.LocalStore.Enabled = b
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.LocalStore.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "PORT"); v != "" {
		c.HTTP.Port = v
	}
	if v := os.Getenv(EnvPrefix + "ADMINGROUP"); v != "" {
		c.HTTP.AdminGroup = v
	}
	return nil
}

// Validate checks the required options and parses the server string. A
// missing server or domain yields ErrMissingServer or ErrMissingDomain
// (possibly both, joined).
func (c *Config) Validate() error {
	l := log.WithFields(log.Fields{
		"app": "config",
		"fn":  "Validate",
	})
	l.Debug("starting")
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		var errs []error
		for _, fe := range verrs {
			switch fe.StructNamespace() {
			case "Config.Server":
				errs = append(errs, ErrMissingServer)
			case "Config.Domain":
				errs = append(errs, ErrMissingDomain)
			default:
				errs = append(errs, fmt.Errorf("invalid %s: %q", fe.Namespace(), fe.Value()))
			}
		}
		return errors.Join(errs...)
	}
	e, err := ParseEndpoint(c.Server)
	if err != nil {
		return err
	}
	c.Endpoint = e
	if c.DefaultGroup == "" {
		c.DefaultGroup = DefaultGroup
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}
