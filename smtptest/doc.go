package smtptest

// smtptest provides an in-process SMTP relay and helpers for inspecting the
// messages it receives. Only meant for tests.
