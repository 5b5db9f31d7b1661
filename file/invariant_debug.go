//go:build toxdebug

package file

import "fmt"

func invariant(ok bool, format string, args ...interface{}) {
	if !ok {
		panic("file: invariant violated: " + fmt.Sprintf(format, args...))
	}
}
