package loadtest

import (
	"os"
)

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Library Borrow Storm
====================

Seeds one book with k copies and N members, fires N concurrent borrows and
checks that exactly k succeed, N-k conflict, every copy comes back after the
returns and top-books eventually counts the borrows.

Usage:
  go run ./cmd/loadtest [options]

Options:
  -url string
        Base URL of the lending service (default "http://localhost:8080")
  -analytics-url string
        Base URL of the analytics endpoints (default: same as -url)
  -members int
        Members competing for the book (default 50)
  -copies int
        Copies of the contested book (default 5)
  -timeout duration
        HTTP request timeout (default 10s)
  -settle duration
        How long top-books may lag behind the borrows (default 10s)
  -verbose
        Log every unexpected failure
  -help
        Show this help message

Exit status is non-zero when verification fails.
`)
}
