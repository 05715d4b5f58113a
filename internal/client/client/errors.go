package client

import (
	"errors"

	pb "github.com/dmitrijs2005/palette/internal/proto"
)

var (
	ErrUnavailable           = errors.New("server unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not found")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrBillingNotConfigured  = errors.New("billing not configured on server")
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)

// QuotaError reports that the server refused a generation. Entitlement is
// nil when the server sent no detail.
type QuotaError struct {
	Entitlement *pb.Entitlement
}

func (e *QuotaError) Error() string { return "generation quota exhausted" }
