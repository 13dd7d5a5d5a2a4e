// Package reset sends password reset one-time passwords by email.
package reset

import (
	"fmt"

	"github.com/ntwaza/resetmail/email"
	"github.com/ntwaza/resetmail/userconfig"
)

const (
	// Subject is used for every reset email.
	Subject = "Ntwaza Password Reset OTP"
	// ExpiryMinutes is how long the OTP stays valid, as told to the user.
	// Enforcing it is up to whoever issued the OTP.
	ExpiryMinutes = 10
)

// Body returns the plain-text body of a reset email carrying otp.
func Body(otp string) string {
	return fmt.Sprintf(
		"Your OTP for password reset is: %v\nThis code will expire in %v minutes.",
		otp,
		ExpiryMinutes,
	)
}

// Sender is satisfied by *email.SMTPClient.
type Sender interface {
	Send(recipient, subject, body string) email.Result
}

// Notifier sends reset emails through a Sender.
type Notifier struct {
	sender Sender
}

// NewNotifier returns a Notifier that sends through s.
func NewNotifier(s Sender) *Notifier {
	return &Notifier{sender: s}
}

// SendOTP emails otp to recipient. Delivery failures are reported in the
// Result, never as a panic.
func (n *Notifier) SendOTP(recipient, otp string) email.Result {
	return n.sender.Send(recipient, Subject, Body(otp))
}

// SendResetEmail connects to the relay described by cfg and emails otp to
// recipient. An invalid cfg shows up as a failed Result.
func SendResetEmail(cfg userconfig.Meta, recipient, otp string, opts ...email.Option) email.Result {
	sc, err := email.NewSMTPClient(cfg.Mail, opts...)
	if err != nil {
		return email.Failed(recipient, fmt.Errorf("can't set up the mail client: %w", err), opts...)
	}

	return NewNotifier(sc).SendOTP(recipient, otp)
}
