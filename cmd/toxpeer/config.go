package main

import (
	"errors"
	"flag"
	"math"
	"os"
	"strconv"
	"time"
)

// Config holds the configuration of the toxpeer binary.
type Config struct {
	Listen       string
	Connect      string
	Peer         uint
	Send         string
	OutDir       string
	Call         bool
	CallVideo    bool
	CallDuration time.Duration
	Answer       bool
	Opus         bool
	LogLevel     string
}

// ParseConfig parses configuration from flags and environment variables.
// Flags take precedence over environment variables.
func ParseConfig() (Config, error) {
	return parseConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseConfigWithFlagSet(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{
		Peer:         1,
		OutDir:       ".",
		CallDuration: 5 * time.Second,
		LogLevel:     "info",
	}

	// Read from environment first
	if v := os.Getenv("TOXPEER_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("TOXPEER_CONNECT"); v != "" {
		cfg.Connect = v
	}
	if v := os.Getenv("TOXPEER_PEER"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Peer = uint(n)
		}
	}
	if v := os.Getenv("TOXPEER_OUT_DIR"); v != "" {
		cfg.OutDir = v
	}
	if v := os.Getenv("TOXPEER_ANSWER"); v != "" {
		cfg.Answer, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("TOXPEER_OPUS"); v != "" {
		cfg.Opus, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("TOXPEER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Flags override environment
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "address to accept a websocket peer on (e.g. :8080)")
	fs.StringVar(&cfg.Connect, "connect", cfg.Connect, "websocket URL of the peer to dial (e.g. ws://host:8080/peer)")
	fs.UintVar(&cfg.Peer, "peer", cfg.Peer, "number identifying the remote peer")
	fs.StringVar(&cfg.Send, "send", cfg.Send, "file to send to the peer")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "directory for received files")
	fs.BoolVar(&cfg.Call, "call", cfg.Call, "place an audio call to the peer")
	fs.BoolVar(&cfg.CallVideo, "video", cfg.CallVideo, "propose video when placing a call")
	fs.DurationVar(&cfg.CallDuration, "call-duration", cfg.CallDuration, "hang up after this long")
	fs.BoolVar(&cfg.Answer, "answer", cfg.Answer, "answer incoming calls")
	fs.BoolVar(&cfg.Opus, "opus", cfg.Opus, "exchange Opus audio instead of raw PCM")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if (c.Listen == "") == (c.Connect == "") {
		return errors.New("exactly one of -listen and -connect is required")
	}
	if uint64(c.Peer) > math.MaxUint32 {
		return errors.New("-peer must fit in 32 bits")
	}
	if c.Call && c.CallDuration <= 0 {
		return errors.New("-call-duration must be positive")
	}
	return nil
}
