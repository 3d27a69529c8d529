// Package logging builds the component loggers used across slate. Every
// logger writes to stderr and, when a file is configured, to a rotating log
// file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/slatenotes/slate/internal/config"
)

// Options configures the shared log output.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Quiet drops the stderr copy.
	Quiet bool
}

// FromConfig converts the log section of a config.
func FromConfig(c config.LogConfig) Options {
	return Options{
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}

// Output is the writer shared by all component loggers.
type Output struct {
	w    io.Writer
	file *lumberjack.Logger
}

// Open creates the shared output. Close it to release the log file.
func Open(opts Options) (*Output, error) {
	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}

	out := &Output{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		out.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, out.file)
	}

	switch len(writers) {
	case 0:
		out.w = io.Discard
	case 1:
		out.w = writers[0]
	default:
		out.w = io.MultiWriter(writers...)
	}
	return out, nil
}

// Writer returns the raw writer, for libraries that take one.
func (o *Output) Writer() io.Writer {
	return o.w
}

// New returns a logger whose lines start with "[component] ".
func (o *Output) New(component string) *log.Logger {
	return log.New(o.w, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file, if any.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}
