package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "ROOMRELAY_LISTEN_ADDR"
	envVarMode            = "ROOMRELAY_MODE"
	envVarLogFormat       = "ROOMRELAY_LOG_FORMAT"
	envVarLogLevel        = "ROOMRELAY_LOG_LEVEL"
	envVarShutdownTimeout = "ROOMRELAY_SHUTDOWN_TIMEOUT"

	envVarAllowedOrigins = "ALLOWED_ORIGINS"

	// Signaling / WebSocket hardening.
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingWSPongTimeout        = "SIGNALING_WS_PONG_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarSignalingSendBuffer           = "SIGNALING_SEND_BUFFER"

	// Room capacity quotas. Zero disables the quota.
	envVarMaxRoomMembers = "MAX_ROOM_MEMBERS"
	envVarMaxRooms       = "MAX_ROOMS"
)

const (
	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMode            = ModeDev

	// DefaultMaxSignalingMessageBytes is sized for SDP blobs, which dominate
	// signaling traffic. Browser offers with many media sections stay well
	// under 64 KB.
	DefaultMaxSignalingMessageBytes int64 = 64 * 1024

	DefaultMaxSignalingMessagesPerSecond = 50

	DefaultSignalingWSPongTimeout = 60 * time.Second

	// DefaultSignalingSendBuffer is the per-connection outbound queue length.
	// A full queue drops the message rather than blocking the room.
	DefaultSignalingSendBuffer = 256
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// AllowedOrigins is the websocket/browser Origin allowlist. Empty means
	// all origins are accepted (development only; warned about in prod mode).
	AllowedOrigins []string

	// Inbound signaling hardening.
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	// Keepalive. PingInterval must stay below PongTimeout; when unset it is
	// derived from PongTimeout.
	PongTimeout  time.Duration
	PingInterval time.Duration

	// Per-connection outbound queue length.
	SendBuffer int

	// Capacity quotas. Zero disables the respective quota.
	MaxRoomMembers int
	MaxRooms       int
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	logFormatDefault := envLogFormat
	if !envLogFormatOK || envLogFormat == "" {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	logLevelDefault := envLogLevel
	if !envLogLevelOK || envLogLevel == "" {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	maxMessageBytes, err := envInt64OrDefault(lookup, envVarMaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	pongTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSPongTimeout, DefaultSignalingWSPongTimeout)
	if err != nil {
		return Config{}, err
	}
	// Pings must be spaced inside the pong window or healthy connections get
	// reaped by their own read deadline.
	pingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, pongTimeout*9/10)
	if err != nil {
		return Config{}, err
	}
	sendBuffer, err := envIntOrDefault(lookup, envVarSignalingSendBuffer, DefaultSignalingSendBuffer)
	if err != nil {
		return Config{}, err
	}
	maxRoomMembers, err := envIntOrDefault(lookup, envVarMaxRoomMembers, 0)
	if err != nil {
		return Config{}, err
	}
	maxRooms, err := envIntOrDefault(lookup, envVarMaxRooms, 0)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("roomrelay", flag.ContinueOnError)
	listenFlag := fs.String("listen", listenAddr, "listen address (host:port)")
	modeFlag := fs.String("mode", modeDefault, "mode: dev|prod")
	logFormatFlag := fs.String("log-format", logFormatDefault, "log format: text|json")
	logLevelFlag := fs.String("log-level", logLevelDefault, "log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(*modeFlag)
	if err != nil {
		return Config{}, err
	}
	logFormat, err := parseLogFormat(*logFormatFlag)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(*logLevelFlag)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      *listenFlag,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,

		AllowedOrigins: splitList(allowedOriginsStr),

		MaxSignalingMessageBytes:      maxMessageBytes,
		MaxSignalingMessagesPerSecond: maxMessagesPerSecond,
		PongTimeout:                   pongTimeout,
		PingInterval:                  pingInterval,
		SendBuffer:                    sendBuffer,

		MaxRoomMembers: maxRoomMembers,
		MaxRooms:       maxRooms,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.MaxSignalingMessageBytes <= 0 {
		return fmt.Errorf("%s must be positive, got %d", envVarMaxSignalingMessageBytes, c.MaxSignalingMessageBytes)
	}
	if c.MaxSignalingMessagesPerSecond <= 0 {
		return fmt.Errorf("%s must be positive, got %d", envVarMaxSignalingMessagesPerSecond, c.MaxSignalingMessagesPerSecond)
	}
	if c.PongTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", envVarSignalingWSPongTimeout, c.PongTimeout)
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		return fmt.Errorf("%s must be positive and below %s, got %s", envVarSignalingWSPingInterval, envVarSignalingWSPongTimeout, c.PingInterval)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%s must be positive, got %d", envVarSignalingSendBuffer, c.SendBuffer)
	}
	if c.MaxRoomMembers < 0 {
		return fmt.Errorf("%s must not be negative, got %d", envVarMaxRoomMembers, c.MaxRoomMembers)
	}
	if c.MaxRooms < 0 {
		return fmt.Errorf("%s must not be negative, got %d", envVarMaxRooms, c.MaxRooms)
	}
	return nil
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid %s %q: must be dev or prod", envVarMode, raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid %s %q: must be text or json", envVarLogFormat, raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %s %q: must be debug, info, warn or error", envVarLogLevel, raw)
	}
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
