package oracle

import "errors"

var (
	// ErrAllSourcesFailed indicates every source in a chain failed
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrMalformedResponse indicates a reachable source answered in an unexpected shape
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMissingField indicates a structured response lacked the field an adapter needs
	ErrMissingField = errors.New("required field missing")

	// ErrNoData indicates a quote source had no data for the symbol
	ErrNoData = errors.New("no data for symbol")

	// ErrEmptySymbol indicates a blank ticker was requested
	ErrEmptySymbol = errors.New("symbol must not be empty")

	// ErrUnknownKind indicates a source was configured with an unsupported kind
	ErrUnknownKind = errors.New("unknown source kind")
)
