package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and leases return these
// (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: a uniqueness constraint was hit (sequence or idempotency key taken)
//   - ErrLeaseHeld: another holder owns the lease for that key
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrLeaseHeld   = errors.New("lease held")
	ErrUnavailable = errors.New("unavailable")
)
