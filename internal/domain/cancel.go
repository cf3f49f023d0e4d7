package domain

// CancelState is the value of a CancelFlag in the broker's key/value space,
// namespaced per job id (§3 CancelFlag, §4.5).
type CancelState string

const (
	// CancelStateRequested means the worker should abort at its next
	// checkpoint. Written by C5 for active jobs.
	CancelStateRequested CancelState = "requested"
	// CancelStateCancelled is a terminal marker written by C5 when the job
	// no longer exists in the broker. Workers never write it.
	CancelStateCancelled CancelState = "cancelled"
)
