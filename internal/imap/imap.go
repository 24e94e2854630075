package imap

import (
	"crypto/tls"
	"net"

	"github.com/emersion/go-imap/server"
	"github.com/robertlestak/imapauth/internal/utils"
	log "github.com/sirupsen/logrus"
)

// NewServer builds an IMAP server that authenticates against c. A nil
// tlsConfig serves plain IMAP.
func NewServer(c CredentialChecker, tlsConfig *tls.Config, allowInsecure bool) *server.Server {
	s := server.New(NewBackend(c))
	s.TLSConfig = tlsConfig
	s.AllowInsecureAuth = allowInsecure
	return s
}

func Start(addr string, port string, tlsCrtPath string, tlsKeyPath string, implicitTLS bool, allowInsecure bool, c CredentialChecker) error {
	l := log.WithFields(log.Fields{
		"app": "imap",
		"fn":  "Start",
	})
	l.Debug("starting")
	var t *tls.Config
	if tlsCrtPath != "" && tlsKeyPath != "" {
		var err error
		t, err = utils.TLSConfig(tlsCrtPath, tlsKeyPath)
		if err != nil {
			return err
		}
	}
	s := NewServer(c, t, allowInsecure)
	s.Addr = net.JoinHostPort(addr, port)
	l.WithFields(log.Fields{
		"addr": s.Addr,
		"tls":  t != nil,
	}).Info("starting server")
	if implicitTLS && t != nil {
		return s.ListenAndServeTLS()
	}
	return s.ListenAndServe()
}
