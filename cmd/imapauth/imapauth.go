package main

import (
	"errors"
	"os"

	"github.com/robertlestak/imapauth/internal/cli"
	log "github.com/sirupsen/logrus"
)

func init() {
	ll, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		ll = log.InfoLevel
	}
	log.SetLevel(ll)
}

func main() {
	l := log.WithFields(log.Fields{
		"app": "imapauth",
		"fn":  "main",
	})
	l.Debug("starting")
	err := cli.Start()
	if errors.Is(err, cli.ErrUsage) {
		cli.Usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		l.WithError(err).Fatal("cli failed")
	}
}
