// Package logging hands out per-module slog loggers whose levels can be
// changed after they were created.
//
// Call Initialize once with the [logging] table of the config file, then ask
// for a logger by module name:
//
//	logger := logging.GetLogger("streams").With("stream_id", id)
//	logger.Info("Stream started", "encoder", encoder)
//
// Records go to stdout (text or json) and, on hosts running journald, to the
// journal as well. Journal entries carry SYSLOG_IDENTIFIER=hlsfeed and one
// upper-cased field per attribute, so a single stream can be followed with
//
//	journalctl -t hlsfeed STREAM_ID=lobby
//
// Modules used by hlsfeed: main, streams, ffmpeg, encoders, playlist, feeds,
// api, http, systemd and stream (the foreground stream command).
package logging
