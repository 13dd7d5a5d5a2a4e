package email

// email is responsible for sending a single plain-text message to an SMTP
// relay: building the MIME message, connecting to the relay, upgrading the
// session with STARTTLS and authenticating. It does not care what the message
// says. Callers get an explicit Result back instead of an error so they can
// decide whether a failed delivery matters to them.
