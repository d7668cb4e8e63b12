package logging

import (
	"io"
	"os"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
}

// New creates a Logger that writes colored text to stdout and JSON to
// Dir/Filename.
func New(cfg Config) (*Logger, error) {
	return NewWithConsole(cfg, os.Stdout)
}

// NewWithConsole is New with the console writer replaced, mostly for tests.
func NewWithConsole(cfg Config, console io.Writer) (*Logger, error) {
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if cfg.Filename == "" {
		cfg.Filename = "server.log"
	}
	return newLogger(cfg, console)
}
