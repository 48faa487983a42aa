package loadtest

import "time"

// Defaults for the command line.
const (
	DefaultMembers      = 50
	DefaultCopies       = 5
	DefaultTimeout      = 10 * time.Second
	DefaultSettleWithin = 10 * time.Second

	pollInterval = 100 * time.Millisecond
)
