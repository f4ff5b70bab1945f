package error

import (
	"fmt"
	"net/http"
)

// PersistenceError wraps a failed store write. Op names the write that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (err *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", err.Op, err.Err)
}

func (err *PersistenceError) Unwrap() error {
	return err.Err
}

func (err *PersistenceError) ErrCode() string {
	return "PERSISTENCE_ERROR"
}

func (err *PersistenceError) StatusCode() int {
	return http.StatusInternalServerError
}
