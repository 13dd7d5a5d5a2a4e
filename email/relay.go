package email

import (
	"crypto/tls"
	"fmt"
	"io"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	gomail "gopkg.in/gomail.v2"
)

// RelayDialer submits messages over a session that is always upgraded with
// STARTTLS before any credentials are sent. Unlike gomail.Dialer, it refuses
// to carry on when the relay doesn't offer STARTTLS.
type RelayDialer struct {
	addr      string
	username  string
	password  string
	tlsConfig *tls.Config
}

// NewRelayDialer returns a RelayDialer for the relay at addr (host:port).
func NewRelayDialer(addr, username, password string, tlsConfig *tls.Config) *RelayDialer {
	return &RelayDialer{
		addr:      addr,
		username:  username,
		password:  password,
		tlsConfig: tlsConfig,
	}
}

// DialAndSend opens a session, sends msgs and closes the session. The
// connection is closed on every return path.
func (d *RelayDialer) DialAndSend(msgs ...*gomail.Message) error {
	c, err := smtp.Dial(d.addr)
	if err != nil {
		return fmt.Errorf("can't connect to the relay: %w", err)
	}
	defer c.Close()

	if err := c.StartTLS(d.tlsConfig); err != nil {
		return fmt.Errorf("can't negotiate TLS with the relay: %w", err)
	}

	if err := c.Auth(sasl.NewPlainClient("", d.username, d.password)); err != nil {
		return fmt.Errorf("can't authenticate with the relay: %w", err)
	}

	// gomail works out the envelope from the message headers.
	send := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		if err := c.Mail(from, nil); err != nil {
			return fmt.Errorf("relay rejected the sender %v: %w", from, err)
		}
		for _, addr := range to {
			if err := c.Rcpt(addr); err != nil {
				return fmt.Errorf("relay rejected the recipient %v: %w", addr, err)
			}
		}

		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})

	if err := gomail.Send(send, msgs...); err != nil {
		return err
	}

	return c.Quit()
}
