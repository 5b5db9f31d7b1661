//go:build !toxdebug

package file

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// invariant logs a broken engine invariant. Build with -tags toxdebug to
// panic instead.
func invariant(ok bool, format string, args ...interface{}) {
	if ok {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "invariant",
	}).Error("File transfer invariant violated: " + fmt.Sprintf(format, args...))
}
