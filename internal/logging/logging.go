// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options select the level and optional rotating log file.
type Options struct {
	Level string
	File  string
	// Console writes human-readable output to stderr instead of JSON.
	Console bool
}

// Setup installs log.Logger and returns the file writer to close on exit,
// or nil when no file is configured.
func Setup(opts Options) (io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var stderr io.Writer = os.Stderr
	if opts.Console {
		stderr = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	var file *lumberjack.Logger
	out := stderr
	if opts.File != "" {
		file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,  // megabytes after which new file is created
			MaxBackups: 4,   // number of backups
			MaxAge:     180, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(stderr, file)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	if file == nil {
		return nil, nil
	}
	return file, nil
}
