// Package logging provides the per-package module-field logger used
// throughout citysim-go, mirroring the teacher's logrus.WithField("module",
// ...) convention.
package logging

import "github.com/sirupsen/logrus"

// For returns a logger pre-tagged with the given module name.
func For(module string) *logrus.Entry {
	return logrus.WithField("module", module)
}
