package core

import (
	"errors"
	"strconv"

	"github.com/coregx/dbadapter/internal/messages"
)

// MessageFromError converts an adapter error into a message with Field, Type
// and Code filled and Text left empty. ok is false for errors this package
// did not produce.
func MessageFromError(err error) (msg messages.Message, ok bool) {
	var (
		execErr    *SQLExecutionError
		timeoutErr *TimeoutError
		connErr    *ConnectionError
		countErr   *BindCountMismatchError
		styleErr   *InvalidBindStyleError
		typeErr    *BindTypeError
		featureErr *UnsupportedDialectFeatureError
	)
	switch {
	case err == nil:
		return messages.Message{}, false
	case errors.As(err, &execErr):
		code := execErr.Code
		if code == "" {
			code = execErr.SQLState
		}
		return messages.Message{Field: execErr.Column, Type: "SQLExecution", Code: code}, true
	case errors.As(err, &timeoutErr):
		return messages.Message{Type: "Timeout", Code: timeoutErr.Op}, true
	case errors.As(err, &connErr):
		return messages.Message{Type: "Connection", Code: connErr.Op}, true
	case errors.As(err, &countErr):
		return messages.Message{Field: countErr.Missing, Type: "BindCountMismatch"}, true
	case errors.As(err, &styleErr):
		return messages.Message{Type: "InvalidBindStyle"}, true
	case errors.As(err, &typeErr):
		return messages.Message{Field: strconv.Itoa(typeErr.Position), Type: "BindType", Code: typeErr.Type.String()}, true
	case errors.As(err, &featureErr):
		return messages.Message{Type: "UnsupportedDialectFeature", Code: featureErr.Feature}, true
	case errors.Is(err, ErrNoActiveTransaction):
		return messages.Message{Type: "NoActiveTransaction"}, true
	case errors.Is(err, ErrNoSuchTable):
		return messages.Message{Type: "NoSuchTable"}, true
	}
	return messages.Message{}, false
}
