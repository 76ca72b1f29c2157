package common

import "fmt"

var (
	ErrItemNotFoundError        = fmt.Errorf("item not found")
	ErrScanHasAlreadyStarted    = fmt.Errorf("scan process has already started")
	ErrNoLinksFoundError        = fmt.Errorf("no links found")
	ErrBadConcurrencyValueError = fmt.Errorf("concurrency value must be positive")
	ErrItemNotRestartableError  = fmt.Errorf("item cannot be enqueued in its current status")
	ErrSourcePageDisabledError  = fmt.Errorf("source page is disabled")
)
