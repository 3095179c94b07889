package catalog

import "errors"

// Sentinel errors.
var (
	ErrInvalidCatalog = errors.New("invalid catalog")
	ErrLoadCatalog    = errors.New("failed to load catalog")
	ErrUnknownDept    = errors.New("unknown department")
	ErrUnknownSection = errors.New("unknown section")
)
