package metadata

import "errors"

var (
	// ErrNoMetadata indicates the file format carries no readable metadata block
	ErrNoMetadata = errors.New("no embedded metadata")

	// ErrUnreadable indicates the file could not be opened
	ErrUnreadable = errors.New("file unreadable")
)
