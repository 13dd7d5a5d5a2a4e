package smtptest

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
)

// Message is a single submission received by the test relay: the envelope
// plus the raw DATA payload.
type Message struct {
	Created time.Time
	From    string
	To      []string
	Body    string
}

// Backend implements smtp.Backend. It only lets in the one username and
// password it was created with.
type Backend struct {
	store    *InMemoryEmailStore
	username string
	password string
}

// Login implements smtp.Backend.
func (be *Backend) Login(_ *smtp.ConnectionState, username string, password string) (smtp.Session, error) {
	if username == "" || password == "" {
		return nil, errors.New("no username or password provided")
	}
	if username != be.username || password != be.password {
		return nil, errors.New("invalid username or password")
	}
	return &session{store: be.store}, nil
}

// AnonymousLogin implements smtp.Backend. Not supported since we want to
// enforce AUTH.
func (be *Backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	return nil, smtp.ErrAuthUnsupported
}

// session implements smtp.Session and tracks the envelope of the message
// currently being submitted.
type session struct {
	store *InMemoryEmailStore
	from  string
	to    []string
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

// Logout implements smtp.Session. No-op here.
func (s *session) Logout() error { return nil }

// Mail implements smtp.Session.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt implements smtp.Session.
func (s *session) Rcpt(to string) error {
	s.to = append(s.to, to)
	return nil
}

// Data implements smtp.Session. Stores the email data in memory for retrieval
// at the end of the test.
func (s *session) Data(r io.Reader) error {
	// doubtful we'll get an email this big, but we need a limit
	var maxEmailSize int64 = 10 * units.MiB
	buf, err := io.ReadAll(io.LimitReader(r, maxEmailSize))
	if err != nil {
		return err
	}

	str := &strings.Builder{}
	if _, err := str.Write(buf); err != nil {
		return err
	}
	s.store.saveEmail(Message{
		From: s.from,
		To:   append([]string(nil), s.to...),
		Body: str.String(),
	})
	return nil
}

// InMemoryEmailStore retains messages in memory for comparison against
// a test's expected output. Goroutine safe, since the relay handles each
// connection on its own goroutine.
type InMemoryEmailStore struct {
	mu       *sync.Mutex
	messages []Message
}

// saveEmail stores the message along with a timestamp created just prior to
// saving
func (es *InMemoryEmailStore) saveEmail(m Message) {
	es.mu.Lock()
	defer es.mu.Unlock()

	m.Created = time.Now()
	es.messages = append(es.messages, m)
}

// RetrieveEmails returns all messages received after epoch nanoseconds t.
func (es *InMemoryEmailStore) RetrieveEmails(t int64) []Message {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([]Message, 0, len(es.messages))
	for _, m := range es.messages {
		if m.Created.UnixNano() >= t {
			r = append(r, m)
		}
	}
	return r
}

// InProcessServer is an SMTP relay that runs in the same process as the
// test suite, letting us inspect sent emails. It requires STARTTLS before
// AUTH, like a real submission port. You must initialize this via
// NewInProcessServer.
type InProcessServer struct {
	*smtp.Server
	*InMemoryEmailStore
	listener net.Listener
}

// NewInProcessServer creates an InProcessServer that accepts the given
// credentials. Must provide the paths to the key and cert used for TLS.
func NewInProcessServer(keypath, certpath, username, password string) *InProcessServer {
	is := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		messages: []Message{},
	}

	srv := smtp.NewServer(&Backend{
		store:    is,
		username: username,
		password: password,
	})

	srv.Domain = "localhost"
	srv.AllowInsecureAuth = false // AUTH only after STARTTLS
	srv.AuthDisabled = false
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second

	cert, err := tls.LoadX509KeyPair(certpath, keypath)

	// No way to carry on without a cert, so we panic. We're in a test
	// suite, so this should be fine.
	if err != nil {
		panic(err)
	}

	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	return &InProcessServer{
		Server:             srv,
		InMemoryEmailStore: is,
	}
}

// Start binds the relay to a free loopback port and serves in the background.
// The relay accepts connections as soon as Start returns.
func (is *InProcessServer) Start() error {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	is.listener = l

	go is.Server.Serve(l)
	return nil
}

// Close shuts down the relay. You must initialize a new InProcessServer
// instead of restarting this one.
func (is *InProcessServer) Close() {
	is.Server.Close()
}

// Address returns the host:port of the relay. Only valid after Start.
func (is *InProcessServer) Address() string {
	return is.listener.Addr().String()
}
