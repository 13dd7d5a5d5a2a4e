package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ntwaza/resetmail/email"
	"github.com/ntwaza/resetmail/reset"
	"github.com/ntwaza/resetmail/userconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The status line for a failed send is plain text naming the error, not
// JSON.
func TestNewLoggerWritesReadableStatusLine(t *testing.T) {
	var buf bytes.Buffer
	r := email.Failed(
		"a@example.com",
		errors.New("dial tcp 127.0.0.1:1: connect: connection refused"),
		email.WithLogger(newLogger(&buf, true)),
	)
	require.False(t, r.OK())

	out := buf.String()
	assert.False(t, strings.HasPrefix(out, "{"), "expected console output, got %q", out)
	assert.Contains(t, out, "ERR")
	assert.Contains(t, out, "failed to send email")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "a@example.com")
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1, "expected a single line")
}

func TestLoadConfig(t *testing.T) {
	d := t.TempDir()

	configPath := filepath.Join(d, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`mail:
    host: smtp.file.example.com
    username: file@example.com
`), 0600))

	envPath := filepath.Join(d, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("MAIL_PORT=2525\nMAIL_PASSWORD=fromdotenv\nMAIL_USERNAME=dotenv@example.com\n"), 0600))

	env := userconfig.MapLookup(map[string]string{
		userconfig.EnvUsername: "env@example.com",
	})

	m, err := loadConfig(configPath, envPath, env)
	require.NoError(t, err)

	assert.Equal(t, "smtp.file.example.com", m.Mail.Host)
	assert.Equal(t, 2525, m.Mail.Port)
	// the real environment wins over the dotenv file
	assert.Equal(t, "env@example.com", m.Mail.Username)
	assert.Equal(t, "fromdotenv", m.Mail.Password)
}

func TestLoadConfigDefaultsWithoutFiles(t *testing.T) {
	m, err := loadConfig("", "", userconfig.MapLookup(map[string]string{
		userconfig.EnvUsername: "me@example.com",
		userconfig.EnvPassword: "secret",
	}))
	require.NoError(t, err)

	c, err := m.CheckAndSetDefaults()
	require.NoError(t, err)
	assert.Equal(t, "smtp.gmail.com:587", c.Mail.Address())
}

func TestLoadConfigMissingFiles(t *testing.T) {
	d := t.TempDir()
	empty := userconfig.MapLookup(map[string]string{})

	_, err := loadConfig(filepath.Join(d, "missing.yaml"), "", empty)
	assert.Error(t, err)

	_, err = loadConfig("", filepath.Join(d, "missing.env"), empty)
	assert.Error(t, err)
}

// A send against a relay nobody listens on prints its failure through the
// console logger.
func TestSendFailureReachesConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	r := reset.SendResetEmail(userconfig.Meta{
		Mail: email.UserConfig{
			Host:     "127.0.0.1",
			Port:     1,
			Username: "me@example.com",
			Password: "secret",
		},
	}, "a@example.com", "1", email.WithLogger(newLogger(&buf, true)))

	require.False(t, r.OK())
	assert.Contains(t, buf.String(), "failed to send email")
	assert.Contains(t, buf.String(), "a@example.com")
}
