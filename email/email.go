package email

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gomail "gopkg.in/gomail.v2"
)

// DisplayName is the sender name shown on every message we send.
const DisplayName = "Ntwaza"

const (
	// DefaultHost is used when the user doesn't configure a relay host.
	DefaultHost = "smtp.gmail.com"
	// DefaultPort is the mail submission port, which expects STARTTLS.
	DefaultPort = 587
)

// UserConfig represents relay settings provided by the user. Not meant to be
// used directly for sending email without calling CheckAndSetDefaults.
type UserConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Accept any certificate the relay presents. Only meant for relays
	// with self-signed certs, e.g. in tests.
	SkipCertVerification bool `yaml:"skipCertVerification"`
}

// CheckAndSetDefaults validates uc and either returns a copy of uc with
// default settings applied or returns an error due to an invalid
// configuration.
func (uc *UserConfig) CheckAndSetDefaults() (UserConfig, error) {
	c := *uc

	if c.Host == "" {
		c.Host = DefaultHost
	}

	if c.Port == 0 {
		c.Port = DefaultPort
	}

	if c.Port < 0 || c.Port > 65535 {
		return UserConfig{}, fmt.Errorf("relay port %v is out of range", c.Port)
	}

	if c.Username == "" || c.Password == "" {
		return UserConfig{}, errors.New("must supply a username and password")
	}

	return c, nil
}

// Address returns the host:port of the relay.
func (uc UserConfig) Address() string {
	return net.JoinHostPort(uc.Host, strconv.Itoa(uc.Port))
}

// Dialer opens a session with a relay, submits messages and closes the
// session. *gomail.Dialer satisfies it, as does the STARTTLS-only dialer
// returned by NewRelayDialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Option customizes an SMTPClient.
type Option func(*SMTPClient)

// WithLogger sets the logger that receives the status line for each send.
// Defaults to the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(sc *SMTPClient) {
		sc.log = l
	}
}

// WithDialer replaces the dialer used to reach the relay.
func WithDialer(d Dialer) Option {
	return func(sc *SMTPClient) {
		sc.dialer = d
	}
}

// SMTPClient sends messages from the configured account through one relay.
// It is safe to reuse across calls as long as calls don't overlap.
type SMTPClient struct {
	dialer       Dialer
	log          zerolog.Logger
	FromAddress  string
	RelayAddress string
}

// NewSMTPClient validates user input and returns an SMTPClient that we can use
// to send actual email. Returns a nil client and an error on validation
// failure.
func NewSMTPClient(uc UserConfig, opts ...Option) (*SMTPClient, error) {
	c, err := uc.CheckAndSetDefaults()
	if err != nil {
		return nil, err
	}

	sc := &SMTPClient{
		dialer: NewRelayDialer(c.Address(), c.Username, c.Password, &tls.Config{
			ServerName:         c.Host,
			InsecureSkipVerify: c.SkipCertVerification,
		}),
		log:          log.Logger,
		FromAddress:  c.Username,
		RelayAddress: c.Address(),
	}

	for _, o := range opts {
		o(sc)
	}

	return sc, nil
}

// Result reports the outcome of a single send. A nil Err means the relay
// accepted the message.
type Result struct {
	Recipient string
	MessageID string
	Err       error
}

// OK reports whether the relay accepted the message.
func (r Result) OK() bool {
	return r.Err == nil
}

// Send submits a plain-text message to recipient. Send never panics on relay
// failures and never returns an error: connection, TLS, authentication and
// transmission problems all end up in Result.Err, and a single status line is
// logged either way.
func (sc *SMTPClient) Send(recipient, subject, body string) Result {
	if sc == nil || sc.dialer == nil {
		return Failed(recipient, errors.New("the SMTP client wasn't created with NewSMTPClient"))
	}

	r := Result{Recipient: recipient}

	m, id, err := sc.newMessage(recipient, subject, body)
	if err != nil {
		r.Err = err
		sc.logResult(r)
		return r
	}
	r.MessageID = id

	if err := sc.dialer.DialAndSend(m); err != nil {
		r.Err = fmt.Errorf("can't send the email through %v: %w", sc.RelayAddress, err)
	}

	sc.logResult(r)
	return r
}

// newMessage builds the MIME message and returns it along with its
// Message-ID.
func (sc *SMTPClient) newMessage(recipient, subject, body string) (*gomail.Message, string, error) {
	switch {
	case recipient == "":
		return nil, "", errors.New("must supply a recipient address")
	case subject == "":
		return nil, "", errors.New("must supply a subject")
	case body == "":
		return nil, "", errors.New("must supply a body")
	}

	if _, err := mail.ParseAddress(recipient); err != nil {
		return nil, "", fmt.Errorf("can't parse the recipient address %v: %w", recipient, err)
	}

	id := fmt.Sprintf("<%v@%v>", uuid.NewString(), messageIDDomain(sc.FromAddress))

	m := gomail.NewMessage()
	m.SetAddressHeader("From", sc.FromAddress, DisplayName)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", id)
	m.SetBody("text/plain", body)

	return m, id, nil
}

// Failed returns a failed Result for recipient and logs it the same way Send
// does, using the logger set by opts. It's for callers that can't get as far
// as building an SMTPClient.
func Failed(recipient string, err error, opts ...Option) Result {
	sc := &SMTPClient{log: log.Logger}
	for _, o := range opts {
		o(sc)
	}

	r := Result{Recipient: recipient, Err: err}
	sc.logResult(r)
	return r
}

func (sc *SMTPClient) logResult(r Result) {
	if r.OK() {
		sc.log.Info().
			Str("recipient", r.Recipient).
			Str("messageID", r.MessageID).
			Msg("email sent successfully")
		return
	}
	sc.log.Error().
		Str("recipient", r.Recipient).
		Err(r.Err).
		Msg("failed to send email")
}

// messageIDDomain picks the right-hand side of a Message-ID from the sender
// address. Usernames that aren't addresses fall back to localhost.
func messageIDDomain(from string) string {
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		return from[i+1:]
	}
	return "localhost"
}
