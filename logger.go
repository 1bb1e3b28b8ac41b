package esl

import "github.com/sirupsen/logrus"

// Logger is the logging capability injected into Connections and Listeners.
// The severities mirror *syslog.Writer's, trimmed to four (the library
// itself logs at Err and Warning), so callers with a syslog-shaped sink can adapt it directly;
// callers who don't want logging at all get nopLogger.
type Logger interface {
	Err(string)
	Warning(string)
	Info(string)
	Debug(string)
}

type nopLogger struct{}

func (nopLogger) Err(string)     {}
func (nopLogger) Warning(string) {}
func (nopLogger) Info(string)    {}
func (nopLogger) Debug(string)   {}

// logrusLogger adapts a *logrus.Logger to Logger.
type logrusLogger struct {
	l *logrus.Logger
}

// NewLogrusLogger wraps l as a Logger. Passing nil returns a Logger that
// discards everything.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return &logrusLogger{l: l}
}

func (g *logrusLogger) Err(msg string)     { g.l.Error(msg) }
func (g *logrusLogger) Warning(msg string) { g.l.Warn(msg) }
func (g *logrusLogger) Info(msg string)    { g.l.Info(msg) }
func (g *logrusLogger) Debug(msg string)   { g.l.Debug(msg) }

func orNop(lgr Logger) Logger {
	if lgr == nil {
		return nopLogger{}
	}
	return lgr
}
