package main

import (
	"errors"
	"fmt"

	"rentflow/fault"
)

// describe turns err into the line printed on stderr.
func describe(err error) string {
	switch {
	case errors.Is(err, fault.ErrAuthentication):
		return fmt.Sprintf("%v\nrun `rentctl login` to sign in again", err)
	case fault.IsTimeout(err):
		return fmt.Sprintf("%v\nthe request timed out; it may still have been applied, check before retrying", err)
	case errors.Is(err, fault.ErrTransport):
		return fmt.Sprintf("%v\nthe API could not be reached", err)
	default:
		return err.Error()
	}
}
