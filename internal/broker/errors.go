package broker

import "errors"

// ErrJobNotFound is returned when a job id has no hash in Redis — it was
// never enqueued, already trimmed from history, or removed by cancellation.
var ErrJobNotFound = errors.New("broker: job not found")

// ErrAlreadyPromoted is tolerated as a no-op by the promotion loop, per
// §4.3.3's "tolerate already-promoted errors".
var ErrAlreadyPromoted = errors.New("broker: job already promoted")
