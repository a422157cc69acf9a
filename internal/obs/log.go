// Package obs provides the node's structured logging setup. Every
// component gets its own *logrus.Entry scoped with a "component" field,
// replacing ad-hoc log.Printf prefixes with queryable structured fields.
package obs

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the verbosity of every logger returned by For.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// For returns a logger scoped to the named component, e.g. For("chain"),
// For("p2p"), For("consensus").
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}
