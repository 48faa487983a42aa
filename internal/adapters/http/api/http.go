// Package api exposes the lending, catalog and analytics operations over HTTP.
package api

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/booklend/internal/domain/analytics"
	"github.com/okian/booklend/internal/domain/catalog"
	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/logger"
	"github.com/okian/booklend/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultMaxLimit = 100

// Catalog administers books and members.
type Catalog interface {
	CreateBook(ctx context.Context, title, author, isbn string, totalCopies int) (*model.Book, error)
	GetBook(ctx context.Context, id int64) (*model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	UpdateBook(ctx context.Context, id int64, u catalog.BookUpdate) (*model.Book, error)
	DeleteBook(ctx context.Context, id int64) error

	CreateMember(ctx context.Context, name, email string) (*model.Member, error)
	GetMember(ctx context.Context, id int64) (*model.Member, error)
	ListMembers(ctx context.Context) ([]model.Member, error)
	UpdateMember(ctx context.Context, id int64, u catalog.MemberUpdate) (*model.Member, error)
	DeleteMember(ctx context.Context, id int64) error
}

// Lending runs borrow and return.
type Lending interface {
	Borrow(ctx context.Context, bookID, memberID int64) (*model.Loan, error)
	Return(ctx context.Context, loanID int64) (*model.Loan, error)
	ListLoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error)
}

// Analytics answers read-side queries.
type Analytics interface {
	TopBooks(ctx context.Context, limit int) ([]model.BookScore, error)
	SearchLoanEvents(ctx context.Context, q analytics.SearchQuery) (model.Page[model.LoanEvent], error)
	OverdueMembers(ctx context.Context, limit int) ([]model.OverdueMember, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	booksHandler     *BooksHandler
	membersHandler   *MembersHandler
	loansHandler     *LoansHandler
	analyticsHandler *AnalyticsHandler
	logger           logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*serverConfig)

type serverConfig struct {
	maxLimit int
	checks   map[string]HealthCheck
	logger   logger.Logger
}

// WithMaxLimit caps the limit accepted by ranking endpoints.
func WithMaxLimit(n int) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithHealthCheck adds a named dependency probe to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(c *serverConfig) {
		if check != nil {
			c.checks[name] = check
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(cat Catalog, lend Lending, an Analytics, stats StatsProvider, opts ...Option) *Server {
	cfg := &serverConfig{maxLimit: defaultMaxLimit, checks: make(map[string]HealthCheck)}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("http")
	}
	return &Server{
		healthHandler:    NewHealthHandler(cfg.checks),
		statsHandler:     NewStatsHandler(stats),
		booksHandler:     &BooksHandler{catalog: cat, logger: cfg.logger},
		membersHandler:   &MembersHandler{catalog: cat, logger: cfg.logger},
		loansHandler:     &LoansHandler{lending: lend, logger: cfg.logger},
		analyticsHandler: &AnalyticsHandler{analytics: an, maxLimit: cfg.maxLimit, logger: cfg.logger},
		logger:           cfg.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	route("GET /api/books", "books", s.booksHandler.HandleList)
	route("POST /api/books", "books", s.booksHandler.HandleCreate)
	route("GET /api/books/{id}", "book", s.booksHandler.HandleGet)
	route("PUT /api/books/{id}", "book", s.booksHandler.HandleUpdate)
	route("DELETE /api/books/{id}", "book", s.booksHandler.HandleDelete)

	route("GET /api/members", "members", s.membersHandler.HandleList)
	route("POST /api/members", "members", s.membersHandler.HandleCreate)
	route("GET /api/members/{id}", "member", s.membersHandler.HandleGet)
	route("PUT /api/members/{id}", "member", s.membersHandler.HandleUpdate)
	route("DELETE /api/members/{id}", "member", s.membersHandler.HandleDelete)

	route("POST /api/loans/borrow", "loans_borrow", s.loansHandler.HandleBorrow)
	route("POST /api/loans/{loanId}/return", "loans_return", s.loansHandler.HandleReturn)
	route("GET /api/loans", "loans", s.loansHandler.HandleList)

	route("GET /api/analytics/top-books", "top_books", s.analyticsHandler.HandleTopBooks)
	route("GET /api/search/loan-events", "search_loan_events", s.analyticsHandler.HandleSearch)
	route("GET /api/reports/overdue-members", "overdue_members", s.analyticsHandler.HandleOverdue)
}

// envelope is the body of every API response.
type envelope struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data, Message: "success"})
}

func writeError(ctx context.Context, w http.ResponseWriter, l logger.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		l.Error(ctx, "request failed", logger.Error(err))
	}
	writeJSON(w, status, envelope{Message: msg})
}
