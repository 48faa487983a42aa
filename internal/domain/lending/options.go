package lending

import (
	"time"

	"github.com/okian/booklend/pkg/logger"
)

const (
	defaultMaxActiveLoans   = 3
	defaultLoanDurationDays = 14
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithMaxActiveLoans caps the active loans a member may hold.
func WithMaxActiveLoans(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxActiveLoans = n
		}
	}
}

// WithLoanDurationDays sets the loan period in days.
func WithLoanDurationDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.loanDurationDays = days
		}
	}
}

// WithEmitter sets the sink for lending transitions.
func WithEmitter(e Emitter) Option {
	return func(s *Service) {
		if e != nil {
			s.emitter = e
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
