package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ntwaza/resetmail/reset"
	"github.com/ntwaza/resetmail/userconfig"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// newLogger returns a human-readable logger with timestamps and the
// filename and line number of each call.
func newLogger(w io.Writer, noColor bool) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: noColor}).
		With().
		Timestamp().
		Caller().
		Logger()
}

// loadConfig builds the application config once: the YAML file at configPath
// (if any) is the base, then environment variables, then the dotenv file at
// envPath (if any) for whatever the environment leaves unset.
func loadConfig(configPath, envPath string, lookup userconfig.LookupFunc) (userconfig.Meta, error) {
	config := &userconfig.Meta{}
	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return userconfig.Meta{}, fmt.Errorf("can't open the application config file: %v", err)
		}
		defer f.Close()

		config, err = userconfig.Parse(f)
		if err != nil {
			return userconfig.Meta{}, err
		}
	}

	if envPath != "" {
		v, err := userconfig.ReadEnvFile(envPath)
		if err != nil {
			return userconfig.Meta{}, err
		}
		lookup = userconfig.ChainLookup(lookup, userconfig.MapLookup(v))
	}

	if err := config.ApplyEnv(lookup); err != nil {
		return userconfig.Meta{}, err
	}

	return *config, nil
}

func main() {
	// Status lines go to stdout so whoever runs the command sees whether the
	// email went out.
	log.Logger = newLogger(os.Stdout, false)

	configPath := flag.String(
		"config",
		"",
		"optional path to a YAML file containing your configuration",
	)
	envPath := flag.String(
		"envfile",
		"",
		"optional path to a dotenv file with MAIL_* variables",
	)
	to := flag.String(
		"to",
		"",
		"address to send the password reset OTP to",
	)
	otp := flag.String(
		"otp",
		"",
		"the one-time password to include in the email",
	)
	level := flag.String(
		"level",
		"",
		`log level: "debug", "info", "warn" or "error" (overrides the config)`,
	)
	flag.Parse()

	if *to == "" || *otp == "" {
		log.Error().Msg("both -to and -otp are required")
		os.Exit(2)
	}

	config, err := loadConfig(*configPath, *envPath, os.LookupEnv)
	if err != nil {
		log.Error().
			Str("config-path", *configPath).
			Str("env-path", *envPath).
			Err(err).
			Msg("Problem loading your config")
		os.Exit(1)
	}
	if *level != "" {
		config.Logging.Level = *level
	}

	checkedConfig, err := config.CheckAndSetDefaults()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem validating your config")
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(checkedConfig.Logging.ZerologLevel())

	log.Debug().
		Str("relay", checkedConfig.Mail.Address()).
		Msg("successfully validated the config")

	if r := reset.SendResetEmail(checkedConfig, *to, *otp); !r.OK() {
		os.Exit(1)
	}
}
