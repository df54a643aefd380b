// Package logging provides component-scoped loggers sharing one root
// logrus logger.
package logging

import (
	"io"
	"sync"

	"github.com/danderson/userdata"
	"github.com/sirupsen/logrus"
)

// A Setter adjusts the root logger.
type Setter func(*logrus.Logger) error

var root = struct {
	logger *logrus.Logger
	mutex  sync.Mutex
}{
	logger: func() *logrus.Logger {
		l := logrus.New()
		l.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
		})
		l.SetLevel(logrus.WarnLevel)
		return l
	}(),
}

// Logger is a component-scoped logger.
type Logger = logrus.FieldLogger

// New returns a logger for component, after applying setters to the
// root logger.
func New(component string, setters ...Setter) (Logger, error) {
	for _, s := range setters {
		if err := Set(s); err != nil {
			return nil, err
		}
	}
	return root.logger.WithField("component", component), nil
}

// Set applies setter to the root logger.
func Set(setter Setter) error {
	root.mutex.Lock()
	defer root.mutex.Unlock()
	return setter(root.logger)
}

// Level sets the minimum level logged, by name ("debug", "info",
// "warn", ...).
func Level(lvl string) Setter {
	return func(l *logrus.Logger) error {
		parsed, err := logrus.ParseLevel(lvl)
		if err != nil {
			return err
		}
		l.SetLevel(parsed)
		return nil
	}
}

// Output sends log output to w.
func Output(w io.Writer) Setter {
	return func(l *logrus.Logger) error {
		l.SetOutput(w)
		return nil
	}
}

// Diagnostics logs each diagnostic as a warning whose message is its
// problem, with the fragment name and message line as fields.
func Diagnostics(log Logger, ds []userdata.Diagnostic) {
	for _, d := range ds {
		e := log.WithFields(nil)
		if d.Name != "" {
			e = e.WithField("fragment", d.Name)
		}
		if d.Line > 0 {
			e = e.WithField("line", d.Line)
		}
		if d.Err != nil {
			e = e.WithError(d.Err)
		}
		e.Warn(d.Problem.String())
	}
}
