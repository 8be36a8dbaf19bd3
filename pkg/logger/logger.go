// Package logger provides the process-wide structured logger used by every
// PSBC component. It wraps logrus behind a small printf-style surface so
// call sites read the same whether or not they carry structured fields.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the global log level (e.g. from the --debug flag).
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	std.SetLevel(lvl)
}

func Debug(format string, args ...any) { std.Debugf(format, args...) }
func Info(format string, args ...any)  { std.Infof(format, args...) }
func Warn(format string, args ...any)  { std.Warnf(format, args...) }
func Error(format string, args ...any) { std.Errorf(format, args...) }

// fields builds a logrus.Fields from alternating key/value pairs, the way
// every *X call site below passes them: module first, then key/value pairs.
func fields(module string, kv []any) logrus.Fields {
	f := logrus.Fields{"component": module}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

// DebugX/InfoX/WarnX/ErrorX log with a component tag and structured
// key/value fields, e.g. logger.InfoX("bridge", "request handled", "doc_id", id).
func DebugX(module, msg string, kv ...any) { std.WithFields(fields(module, kv)).Debug(msg) }
func InfoX(module, msg string, kv ...any)  { std.WithFields(fields(module, kv)).Info(msg) }
func WarnX(module, msg string, kv ...any)  { std.WithFields(fields(module, kv)).Warn(msg) }
func ErrorX(module, msg string, kv ...any) { std.WithFields(fields(module, kv)).Error(msg) }
