package service

import (
	"errors"

	"github.com/okian/botpulse/internal/catalog"
)

// Sentinel errors returned by the service. Unknown ids reuse the catalog's.
var (
	ErrUnknownDepartment = catalog.ErrUnknownDept
	ErrUnknownSection    = catalog.ErrUnknownSection
	ErrWrongKind         = errors.New("section has a different kind")
	ErrUnavailable       = errors.New("data not available")
	ErrNotStarted        = errors.New("service not started")
)
