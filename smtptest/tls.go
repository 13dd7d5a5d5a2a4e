package smtptest

import (
	"os"
	"testing"
	"time"

	"github.com/flashmob/go-guerrilla/tests/testcert"
)

// GenerateTLSFiles writes a TLS key and certificate to a temporary test
// directory that is removed after the test runs. It returns the file
// paths of the key and certificate. The certificate is a root cert.
func GenerateTLSFiles(t *testing.T) (keyPath string, certPath string, err error) {
	host := "127.0.0.1"
	d := t.TempDir() + string(os.PathSeparator)
	err = testcert.GenerateCert(
		host,
		"",                         // defaults to now
		time.Duration(1)*time.Hour, // the test won't run for this long
		true,                       // is a CA cert
		2048,                       // usually seen in online tutorials
		"",                         // using the default ecdsa curve,
		d,
	)

	if err != nil {
		return
	}

	// These path names are hardcoded into testcert.GenerateCert
	keyPath = d + host + ".key.pem"
	certPath = d + host + ".cert.pem"

	return
}

// StartServer generates TLS material, starts an InProcessServer accepting
// username/password and stops it when the test finishes.
func StartServer(t *testing.T, username, password string) *InProcessServer {
	t.Helper()

	k, c, err := GenerateTLSFiles(t)
	if err != nil {
		t.Fatalf("can't generate TLS files for the test relay: %v", err)
	}

	srv := NewInProcessServer(k, c, username, password)
	if err := srv.Start(); err != nil {
		t.Fatalf("can't start the test relay: %v", err)
	}
	t.Cleanup(srv.Close)

	return srv
}
