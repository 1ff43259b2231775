package main

import (
	"log/slog"

	"github.com/openmeet/roomrelay/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if len(cfg.AllowedOrigins) == 0 {
		logger.Warn("startup security warning: ALLOWED_ORIGINS is unset (any browser origin may connect)",
			"warning_code", "allowed_origins_unset",
			"mode", cfg.Mode,
		)
	} else if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxRooms <= 0 {
		logger.Warn("startup security warning: MAX_ROOMS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_rooms_unlimited_in_prod",
			"max_rooms", cfg.MaxRooms,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxRoomMembers <= 0 {
		logger.Warn("startup security warning: MAX_ROOM_MEMBERS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_room_members_unlimited_in_prod",
			"max_room_members", cfg.MaxRoomMembers,
			"mode", cfg.Mode,
		)
	}

	// Oversized frames mean per-message allocation exposure; signaling SDP
	// traffic never needs more than a few hundred KB.
	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-message allocation risk)",
			"warning_code", "max_signaling_message_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
