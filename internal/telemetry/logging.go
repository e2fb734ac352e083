package telemetry

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures NewLogger.
type LogOptions struct {
	// Verbose enables debug level.
	Verbose bool
	// File, when set, receives a copy of every record, rotated by size.
	File string
	// MaxSizeMB is the rotation threshold for File.
	MaxSizeMB int
	// MaxBackups is how many rotated files to keep. Defaults to 5.
	MaxBackups int
}

// NewLogger returns a text logger writing to w and, optionally, a rotated
// file. The returned close function releases the file.
func NewLogger(w io.Writer, opts LogOptions) (*slog.Logger, func() error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	closeFn := func() error { return nil }
	if opts.File != "" {
		if opts.MaxBackups <= 0 {
			opts.MaxBackups = 5
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closeFn = rotator.Close
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closeFn
}
