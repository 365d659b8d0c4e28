package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrPrecondition    = errors.New("precondition failed")
	ErrInvalidPromo    = errors.New("invalid promo code")
	ErrInvalidConfig   = errors.New("invalid service config")
	ErrInvalidCheckout = errors.New("invalid checkout event")
	ErrInvalidRequest  = errors.New("invalid request")

	ErrInvalidBackend  = errors.New("invalid backend")
	ErrDataStoreAccess = errors.New("data store read/write error")

	// ErrFetchFailure marks an entitlement that could not be resolved. It is
	// never the same outcome as a resolved snapshot with HasAccess == false.
	ErrFetchFailure = errors.New("entitlement fetch failed")
)

func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	} else {
		return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
	}
}
