package types

import "errors"

// Domain specific errors surfaced across services.
var (
	ErrNotFound            = errors.New("requested item not found")
	ErrConflict            = errors.New("item already exists or conflict")
	ErrUnauthenticated     = errors.New("authentication required or invalid credentials")
	ErrForbidden           = errors.New("action forbidden")
	ErrBadRequest          = errors.New("bad request")
	ErrPaywallRequired     = errors.New("guest trip limit reached")
	ErrProviderUnavailable = errors.New("external provider unavailable")
	ErrInternal            = errors.New("internal error")
)
