package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyLoading is returned when a fetch is triggered while another one is outstanding.
	ErrAlreadyLoading = errors.New("page load already in progress")

	// ErrAlreadyLoaded is returned by LoadInitial once the first page is in place.
	// It matches ErrAlreadyLoading with errors.Is.
	ErrAlreadyLoaded = fmt.Errorf("%w: initial page already loaded", ErrAlreadyLoading)

	// ErrIndexOutOfRange is returned for a selection outside the loaded characters.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrIncomplete is returned by FetchAll when fewer characters arrive than the total announced.
	ErrIncomplete = errors.New("incomplete character list")

	// ErrClosed is returned when the controller or its loop has been shut down.
	ErrClosed = errors.New("controller closed")
)
