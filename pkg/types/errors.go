package types

import "errors"

// Domain errors shared across packages
var (
	ErrEmptyPath       = errors.New("file path cannot be empty")
	ErrUnsupportedFile = errors.New("file type is not supported by the analyzer")

	// Symbol validation errors
	ErrEmptySymbolName   = errors.New("symbol name is required")
	ErrInvalidSymbolKind = errors.New("invalid symbol kind")
	ErrInvalidLine       = errors.New("line must be >= 1")
	ErrMissingReceiver   = errors.New("methods must have a receiver type")
)
