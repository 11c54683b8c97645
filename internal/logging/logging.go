// Package logging builds the *log.Logger values handed to each component.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the log destination.
type Options struct {
	// File is a log file path; empty writes to stderr
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Verbose enables logging from components that are quiet by default
	Verbose bool
}

// Sink owns the log writer shared by every component logger.
type Sink struct {
	w       io.Writer
	closer  io.Closer
	verbose bool
}

// Open returns a sink writing to a rotating file, or to stderr when no file
// is configured.
func Open(opts Options) (*Sink, error) {
	if opts.File == "" {
		return &Sink{w: os.Stderr, verbose: opts.Verbose}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	// A file is always verbose; nothing there interrupts the terminal.
	return &Sink{w: lj, closer: lj, verbose: true}, nil
}

// Logger returns a logger with a "[component] " prefix.
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}

// Quiet returns a component logger that discards output unless the sink is
// verbose. Libraries that log routine progress get one of these in
// interactive commands.
func (s *Sink) Quiet(component string) *log.Logger {
	if !s.verbose {
		return log.New(io.Discard, "", 0)
	}
	return s.Logger(component)
}

// Writer returns the underlying writer.
func (s *Sink) Writer() io.Writer { return s.w }

// Close flushes and closes the log file, if any.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
