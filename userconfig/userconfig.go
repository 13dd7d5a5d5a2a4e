package userconfig

import (
	"fmt"
	"io"
	"strconv"

	"github.com/ntwaza/resetmail/email"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v2"
)

// Environment variables that configure the relay and logging. They take
// precedence over the config file.
const (
	EnvServer               = "MAIL_SERVER"
	EnvPort                 = "MAIL_PORT"
	EnvUsername             = "MAIL_USERNAME"
	EnvPassword             = "MAIL_PASSWORD"
	EnvSkipCertVerification = "MAIL_SKIP_CERT_VERIFICATION"
	EnvLogLevel             = "LOG_LEVEL"
)

// Meta represents all current config options that the application can use.
// Build it once at startup and pass it to whatever needs it.
type Meta struct {
	Mail    email.UserConfig `yaml:"mail"`
	Logging Logging          `yaml:"logging"`
}

// Logging contains config options for the application's logs
type Logging struct {
	// "debug", "info", "warn" or "error"
	Level string `yaml:"level"`
}

// ZerologLevel maps Level to a zerolog level, defaulting to info.
func (l Logging) ZerologLevel() zerolog.Level {
	switch l.Level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// MapLookup returns a LookupFunc backed by m, e.g. the output of
// ReadEnvFile.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// ChainLookup returns a LookupFunc that tries each of lookups in order and
// returns the first non-empty value.
func ChainLookup(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if v, ok := l(key); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
}

// ApplyEnv overrides m with any non-empty variables that lookup finds.
// Unset or empty variables leave m alone so defaults can apply later.
func (m *Meta) ApplyEnv(lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if v, ok := get(EnvServer); ok {
		m.Mail.Host = v
	}

	if v, ok := get(EnvPort); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("can't parse %v as an integer: %v", EnvPort, err)
		}
		m.Mail.Port = p
	}

	if v, ok := get(EnvUsername); ok {
		m.Mail.Username = v
	}

	if v, ok := get(EnvPassword); ok {
		m.Mail.Password = v
	}

	if v, ok := get(EnvSkipCertVerification); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("can't parse %v as a boolean: %v", EnvSkipCertVerification, err)
		}
		m.Mail.SkipCertVerification = b
	}

	if v, ok := get(EnvLogLevel); ok {
		m.Logging.Level = v
	}

	return nil
}

// FromEnv builds a Meta from environment variables alone. Host and port
// fall back to their defaults in CheckAndSetDefaults when unset.
func FromEnv(lookup LookupFunc) (Meta, error) {
	var m Meta
	if err := m.ApplyEnv(lookup); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Parse reads a YAML config file. An error indicates a problem with parsing.
// Values are not validated until CheckAndSetDefaults.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil && err != io.EOF {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}
	return &m, nil
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	e, err := m.Mail.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, fmt.Errorf("invalid mail settings: %v", err)
	}

	return Meta{
		Mail:    e,
		Logging: m.Logging,
	}, nil
}

// ReadEnvFile parses a dotenv file without touching the process
// environment. Combine it with ChainLookup so real environment variables
// win over the file.
func ReadEnvFile(path string) (map[string]string, error) {
	v, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("can't read the env file %v: %v", path, err)
	}
	return v, nil
}
