// Package diagnostics provides the engine's logging infrastructure: a
// logrus logger whose output is routed between stdout and stderr by level,
// with optional file and TCP-syslog sinks layered on top.
package diagnostics

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"
)

// outputSplitter routes formatted log lines to stderr when they carry
// "level=error", and to stdout otherwise.
type outputSplitter struct {
	stdout, stderr io.Writer
}

func (s *outputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return s.stderr.Write(p)
	}
	return s.stdout.Write(p)
}

// Config selects the destinations and verbosity of a Logger.
type Config struct {
	LogFile   string // optional: append formatted lines here too
	SyslogURL string // optional: "tcp://host:port", dial and stream lines there too
	Verbose   bool   // raise level to Info
	Debug     bool   // raise level to Debug (wins over Verbose)
}

// New builds a logrus.Logger per cfg. Any extra sink that cannot be opened
// (bad log file path, unreachable syslog endpoint) is reported as an error
// rather than silently dropped, since diagnostics are the only visibility
// an operator has into the engine.
func New(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()
	splitter := &outputSplitter{stdout: os.Stdout, stderr: os.Stderr}

	var extra []io.Writer
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("diagnostics: open log file: %w", err)
		}
		extra = append(extra, f)
	}
	if cfg.SyslogURL != "" {
		conn, err := dialSyslog(cfg.SyslogURL)
		if err != nil {
			return nil, fmt.Errorf("diagnostics: dial syslog: %w", err)
		}
		extra = append(extra, conn)
	}

	if len(extra) == 0 {
		logger.SetOutput(splitter)
	} else {
		logger.SetOutput(io.MultiWriter(append([]io.Writer{splitter}, extra...)...))
	}

	logger.SetLevel(logrus.WarnLevel)
	if cfg.Verbose {
		logger.SetLevel(logrus.InfoLevel)
	}
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger, nil
}

// dialSyslog opens a TCP connection to a "tcp://host:port" syslog
// endpoint. UDP is intentionally unsupported, per the base CLI contract.
func dialSyslog(rawURL string) (net.Conn, error) {
	const prefix = "tcp://"
	if len(rawURL) <= len(prefix) || rawURL[:len(prefix)] != prefix {
		return nil, fmt.Errorf("syslog url %q must use the tcp:// scheme", rawURL)
	}
	return net.Dial("tcp", rawURL[len(prefix):])
}
