package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devicegateway/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupLogging sends logs to the console and, for the server, to a
// timestamped file under cfg.Dir. The returned func closes the file.
func setupLogging(cfg config.LoggingConfig, toFile bool) func() {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	if !toFile || cfg.Dir == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return func() {}
	}

	logFile, logPath, err := openLogFile(cfg.Dir)
	if err != nil {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		log.Warn().Err(err).Msg("Failed to setup file logging")
		return func() {}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, logFile)).With().Timestamp().Logger()
	log.Info().Str("path", logPath).Msg("📝 Logging to file")
	return func() { logFile.Close() }
}

// openLogFile creates dir/2025-12-08_21-52-35.log
func openLogFile(dir string) (io.WriteCloser, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(dir, timestamp+".log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}
	return logFile, logPath, nil
}
