//go:build cgo

package core

import (
	"errors"
	"strconv"

	"github.com/mattn/go-sqlite3"
)

// The cgo build registers the mattn "sqlite3" driver alongside modernc "sqlite".
func init() {
	engineClassifiers = append(engineClassifiers, classifyMattn)
}

func classifyMattn(err error) (engineError, bool) {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return engineError{}, false
	}
	e := engineError{code: strconv.Itoa(int(se.ExtendedCode)), message: se.Error()}
	if m := sqliteColumn.FindStringSubmatch(e.message); m != nil {
		e.column = m[1]
	}
	return e, true
}
