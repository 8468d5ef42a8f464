package main

import (
	"errors"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type config struct {
	host  string
	port  uint16
	debug bool

	jobLimit           int
	notificationsLimit int
	eventsLimit        int
	jobConcurrency     int

	demoJobs     int
	demoTicks    int
	demoTickRate float64
}

func (c *config) validate() error {
	if c.port < 1 {
		return errors.New("port must be in valid range")
	}

	if c.demoJobs < 1 {
		return errors.New("jobs must be at least 1")
	}

	if c.demoTicks < 1 {
		return errors.New("ticks must be at least 1")
	}

	if c.demoTickRate <= 0 {
		return errors.New("tick-rate must be positive")
	}

	return nil
}

// loadConfig layers, from lowest to highest precedence: an optional
// jobcoord.yaml in the working directory, JOBCOORD_* environment variables,
// and command-line flags.
func loadConfig(flags *pflag.FlagSet) (*config, error) {
	v := viper.New()

	v.SetConfigName("jobcoord")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("JOBCOORD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &config{
		host:  v.GetString("host"),
		port:  v.GetUint16("port"),
		debug: v.GetBool("debug"),

		jobLimit:           v.GetInt("job-limit"),
		notificationsLimit: v.GetInt("notifications-limit"),
		eventsLimit:        v.GetInt("events-limit"),
		jobConcurrency:     v.GetInt("job-concurrency"),

		demoJobs:     v.GetInt("jobs"),
		demoTicks:    v.GetInt("ticks"),
		demoTickRate: v.GetFloat64("tick-rate"),
	}

	return cfg, cfg.validate()
}
