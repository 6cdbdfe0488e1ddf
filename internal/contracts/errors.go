package contracts

import "errors"

// Error taxonomy for the extraction → screening → ledger → alert
// pipeline. Extraction and screening problems are scoped to a single
// filing or metric and never abort a batch.
var (
	// ErrUnsupportedFormat is returned when a filing declares a source
	// format no extractor is registered for.
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrOutOfOrderVerdict is returned by the ledger when a verdict's
	// period-end predates the latest recorded verdict by more than the
	// grace window. Recoverable via an explicit backfill.
	ErrOutOfOrderVerdict = errors.New("out-of-order verdict")

	// ErrDeliveryFailed is returned by the dispatcher after the retry
	// ceiling is exhausted. The alert record is persisted in the
	// delivery_failed state for async re-drive.
	ErrDeliveryFailed = errors.New("alert delivery failed")

	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("not found")
)
