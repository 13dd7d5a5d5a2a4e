package reset

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/ntwaza/resetmail/email"
	"github.com/ntwaza/resetmail/smtptest"
	"github.com/ntwaza/resetmail/userconfig"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEmail struct {
	recipient string
	subject   string
	body      string
}

// recordingSender keeps whatever it's asked to send.
type recordingSender struct {
	sent []sentEmail
	err  error
}

func (rs *recordingSender) Send(recipient, subject, body string) email.Result {
	rs.sent = append(rs.sent, sentEmail{recipient, subject, body})
	return email.Result{Recipient: recipient, Err: rs.err}
}

func TestBody(t *testing.T) {
	assert.Equal(
		t,
		"Your OTP for password reset is: 123456\nThis code will expire in 10 minutes.",
		Body("123456"),
	)

	for _, otp := range []string{"0", "A1B2C3", "999999999"} {
		b := Body(otp)
		if !strings.Contains(b, otp) {
			t.Errorf("body %q doesn't contain the OTP %q", b, otp)
		}
		if !strings.Contains(b, "expire in 10 minutes") {
			t.Errorf("body %q doesn't mention the expiry", b)
		}
	}
}

func TestSendOTP(t *testing.T) {
	rs := &recordingSender{}
	r := NewNotifier(rs).SendOTP("a@example.com", "123456")

	assert.True(t, r.OK())
	require.Len(t, rs.sent, 1)
	assert.Equal(t, sentEmail{
		recipient: "a@example.com",
		subject:   "Ntwaza Password Reset OTP",
		body:      "Your OTP for password reset is: 123456\nThis code will expire in 10 minutes.",
	}, rs.sent[0])
}

func TestSendOTPPassesFailureThrough(t *testing.T) {
	rs := &recordingSender{err: errors.New("connection refused")}
	r := NewNotifier(rs).SendOTP("a@example.com", "123456")

	assert.False(t, r.OK())
	assert.Equal(t, rs.err, r.Err)
}

func TestSendResetEmail(t *testing.T) {
	const (
		user = "ntwaza@example.com"
		pass = "app-password"
	)
	srv := smtptest.StartServer(t, user, pass)

	h, p, err := net.SplitHostPort(srv.Address())
	require.NoError(t, err)

	m, err := userconfig.FromEnv(userconfig.MapLookup(map[string]string{
		userconfig.EnvServer:               h,
		userconfig.EnvPort:                 p,
		userconfig.EnvUsername:             user,
		userconfig.EnvPassword:             pass,
		userconfig.EnvSkipCertVerification: strconv.FormatBool(true),
	}))
	require.NoError(t, err)
	cfg, err := m.CheckAndSetDefaults()
	require.NoError(t, err)

	r := SendResetEmail(cfg, "a@example.com", "123456", email.WithLogger(zerolog.Nop()))
	require.True(t, r.OK(), "unexpected error: %v", r.Err)

	ems := srv.RetrieveEmails(0)
	require.Len(t, ems, 1)
	assert.Equal(t, user, ems[0].From)
	assert.Equal(t, []string{"a@example.com"}, ems[0].To)

	pe, err := smtptest.ParseEmail(ems[0].Body)
	require.NoError(t, err)
	assert.Equal(t, Subject, pe.Header.Get("Subject"))
	assert.Equal(t, Body("123456"), pe.Body)
}

func TestSendResetEmailInvalidConfig(t *testing.T) {
	// No credentials, like running without MAIL_USERNAME/MAIL_PASSWORD.
	m, err := userconfig.FromEnv(userconfig.MapLookup(map[string]string{}))
	require.NoError(t, err)

	var r email.Result
	assert.NotPanics(t, func() {
		r = SendResetEmail(m, "a@example.com", "123456")
	})
	assert.False(t, r.OK())
	assert.Equal(t, "a@example.com", r.Recipient)
}

func TestSendResetEmailInvalidConfigLogsToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	r := SendResetEmail(userconfig.Meta{}, "a@example.com", "123456", email.WithLogger(zerolog.New(&buf)))
	require.False(t, r.OK())

	var l map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &l))
	assert.Equal(t, "error", l["level"])
	assert.Equal(t, "failed to send email", l["message"])
	assert.Equal(t, r.Err.Error(), l["error"])
}
