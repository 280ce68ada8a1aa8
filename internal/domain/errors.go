package domain

import "errors"

var (
	// ErrBrowserNotReady signals that the shared browser has not been launched
	// or has been lost and could not be relaunched.
	ErrBrowserNotReady = errors.New("browser not ready")
	// ErrPoolClosed signals that the browser handle was closed during shutdown.
	ErrPoolClosed = errors.New("browser closed")
	// ErrSelectorNotFound signals that an element the redemption flow depends on
	// never showed up, which usually means the site markup changed.
	ErrSelectorNotFound = errors.New("selector not found")
)
