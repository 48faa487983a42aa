package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/booklend/internal/adapters/http/api"
	"github.com/okian/booklend/internal/adapters/popularity"
	"github.com/okian/booklend/internal/adapters/repository/memory"
	"github.com/okian/booklend/internal/adapters/search"
	"github.com/okian/booklend/internal/domain/analytics"
	"github.com/okian/booklend/internal/domain/catalog"
	"github.com/okian/booklend/internal/domain/events"
	"github.com/okian/booklend/internal/domain/ingest"
	"github.com/okian/booklend/internal/domain/lending"
	"github.com/okian/booklend/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// syncPublisher hands events straight to the ingestor so reads are
// consistent as soon as the request returns.
type syncPublisher struct{ ingestor *ingest.Ingestor }

func (p syncPublisher) Publish(ctx context.Context, _ string, payload []byte) error {
	p.ingestor.Handle(ctx, payload)
	return nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"queue_len": 0}
}

type response struct {
	code   int
	header http.Header
	Data   json.RawMessage `json:"data"`
	Msg    string          `json:"message"`
}

func newTestMux(now func() time.Time, opts ...api.Option) *http.ServeMux {
	store := memory.New()
	ranking := popularity.NewTreapStore()
	index := search.NewMemoryIndex()
	ingestor := ingest.New(ranking, index)
	emitter := events.NewEmitter(syncPublisher{ingestor: ingestor})

	cat := catalog.NewService(store)
	lend := lending.NewService(store, lending.WithEmitter(emitter), lending.WithMaxActiveLoans(2))
	an := analytics.NewService(ranking, index, store, analytics.WithClock(now))

	mux := http.NewServeMux()
	api.NewServer(cat, lend, an, mockStats{}, opts...).Register(mux)
	return mux
}

func call(mux http.Handler, method, path, body string) response {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	res := response{code: rec.Code, header: rec.Header()}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &res)
	}
	return res
}

func (r response) object() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(r.Data, &out)
	return out
}

func (r response) list() []map[string]any {
	var out []map[string]any
	_ = json.Unmarshal(r.Data, &out)
	return out
}

func TestBooksAPI(t *testing.T) {
	Convey("Given the API over an empty library", t, func() {
		mux := newTestMux(time.Now)

		Convey("When a book is created", func() {
			res := call(mux, http.MethodPost, "/api/books",
				`{"title":"Dune","author":"Herbert","isbn":"978-0441013593","totalCopies":2}`)

			Convey("Then it answers 201 with every copy available", func() {
				So(res.code, ShouldEqual, http.StatusCreated)
				So(res.Msg, ShouldEqual, "success")
				book := res.object()
				So(book["id"], ShouldEqual, 1.0)
				So(book["availableCopies"], ShouldEqual, 2.0)
			})

			Convey("Then it can be read back and listed", func() {
				So(call(mux, http.MethodGet, "/api/books/1", "").object()["title"], ShouldEqual, "Dune")
				So(call(mux, http.MethodGet, "/api/books", "").list(), ShouldHaveLength, 1)
			})

			Convey("Then a second book with the same ISBN conflicts", func() {
				dup := call(mux, http.MethodPost, "/api/books",
					`{"title":"Other","author":"Someone","isbn":"978-0441013593","totalCopies":1}`)
				So(dup.code, ShouldEqual, http.StatusConflict)
				So(dup.Msg, ShouldEqual, "ISBN already exists: 978-0441013593")
			})

			Convey("Then it can be updated partially", func() {
				upd := call(mux, http.MethodPut, "/api/books/1", `{"totalCopies":5}`)
				So(upd.code, ShouldEqual, http.StatusOK)
				So(upd.object()["availableCopies"], ShouldEqual, 5.0)
				So(upd.object()["title"], ShouldEqual, "Dune")
			})

			Convey("Then it can be deleted", func() {
				So(call(mux, http.MethodDelete, "/api/books/1", "").code, ShouldEqual, http.StatusNoContent)
				So(call(mux, http.MethodGet, "/api/books/1", "").code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the request is invalid", func() {
			Convey("Then a missing copy count is rejected", func() {
				res := call(mux, http.MethodPost, "/api/books", `{"title":"a","author":"b","isbn":"c"}`)
				So(res.code, ShouldEqual, http.StatusBadRequest)
				So(res.Msg, ShouldEqual, "totalCopies must not be null")
			})

			Convey("Then a negative copy count is rejected", func() {
				res := call(mux, http.MethodPost, "/api/books", `{"title":"a","author":"b","isbn":"c","totalCopies":-1}`)
				So(res.code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then a malformed body is rejected", func() {
				So(call(mux, http.MethodPost, "/api/books", `{"title":`).code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then a non-numeric id is rejected", func() {
				res := call(mux, http.MethodGet, "/api/books/abc", "")
				So(res.code, ShouldEqual, http.StatusBadRequest)
				So(res.Msg, ShouldEqual, "id must be an integer")
			})

			Convey("Then an unknown book is not found", func() {
				res := call(mux, http.MethodGet, "/api/books/42", "")
				So(res.code, ShouldEqual, http.StatusNotFound)
				So(res.Msg, ShouldEqual, "Book not found: 42")
			})
		})
	})
}

func TestMembersAPI(t *testing.T) {
	Convey("Given the API over an empty library", t, func() {
		mux := newTestMux(time.Now)

		Convey("When a member is created", func() {
			res := call(mux, http.MethodPost, "/api/members", `{"name":"Ada","email":"ada@example.com"}`)
			So(res.code, ShouldEqual, http.StatusCreated)

			Convey("Then the email is unique", func() {
				dup := call(mux, http.MethodPost, "/api/members", `{"name":"Other","email":"ada@example.com"}`)
				So(dup.code, ShouldEqual, http.StatusConflict)
			})

			Convey("Then the name can be changed", func() {
				upd := call(mux, http.MethodPut, "/api/members/1", `{"name":"Ada L."}`)
				So(upd.code, ShouldEqual, http.StatusOK)
				So(upd.object()["name"], ShouldEqual, "Ada L.")
				So(upd.object()["email"], ShouldEqual, "ada@example.com")
			})

			Convey("Then it is listed and can be removed", func() {
				So(call(mux, http.MethodGet, "/api/members", "").list(), ShouldHaveLength, 1)
				So(call(mux, http.MethodDelete, "/api/members/1", "").code, ShouldEqual, http.StatusNoContent)
				So(call(mux, http.MethodGet, "/api/members/1", "").code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the email is not an address", func() {
			res := call(mux, http.MethodPost, "/api/members", `{"name":"Bob","email":"bob"}`)

			Convey("Then it is rejected", func() {
				So(res.code, ShouldEqual, http.StatusBadRequest)
				So(res.Msg, ShouldEqual, "email must be a valid address")
			})
		})
	})
}

func TestLoansAPI(t *testing.T) {
	Convey("Given a book with one copy and two members", t, func() {
		mux := newTestMux(time.Now)
		So(call(mux, http.MethodPost, "/api/books", `{"title":"Dune","author":"Herbert","isbn":"1","totalCopies":1}`).code, ShouldEqual, http.StatusCreated)
		So(call(mux, http.MethodPost, "/api/members", `{"name":"Ada","email":"ada@example.com"}`).code, ShouldEqual, http.StatusCreated)
		So(call(mux, http.MethodPost, "/api/members", `{"name":"Bob","email":"bob@example.com"}`).code, ShouldEqual, http.StatusCreated)

		Convey("When the first member borrows it", func() {
			res := call(mux, http.MethodPost, "/api/loans/borrow", `{"bookId":1,"memberId":1}`)

			Convey("Then the loan is created and the shelf is empty", func() {
				So(res.code, ShouldEqual, http.StatusCreated)
				loan := res.object()
				So(loan["id"], ShouldEqual, 1.0)
				So(loan["returnedAt"], ShouldBeNil)
				So(call(mux, http.MethodGet, "/api/books/1", "").object()["availableCopies"], ShouldEqual, 0.0)
			})

			Convey("Then the second member gets a conflict", func() {
				other := call(mux, http.MethodPost, "/api/loans/borrow", `{"bookId":1,"memberId":2}`)
				So(other.code, ShouldEqual, http.StatusConflict)
				So(other.Msg, ShouldEqual, "No available copies for bookId=1")
			})

			Convey("Then the book cannot be deleted", func() {
				So(call(mux, http.MethodDelete, "/api/books/1", "").code, ShouldEqual, http.StatusConflict)
			})

			Convey("Then returning it restores the copy exactly once", func() {
				ret := call(mux, http.MethodPost, "/api/loans/1/return", "")
				So(ret.code, ShouldEqual, http.StatusOK)
				So(ret.object()["returnedAt"], ShouldNotBeNil)
				So(call(mux, http.MethodGet, "/api/books/1", "").object()["availableCopies"], ShouldEqual, 1.0)

				again := call(mux, http.MethodPost, "/api/loans/1/return", "")
				So(again.code, ShouldEqual, http.StatusNotFound)
				So(again.Msg, ShouldEqual, "Active loan not found: 1")
			})

			Convey("Then the member's loans are listed", func() {
				So(call(mux, http.MethodGet, "/api/loans?memberId=1", "").list(), ShouldHaveLength, 1)
				So(call(mux, http.MethodGet, "/api/loans?memberId=2", "").list(), ShouldBeEmpty)
			})
		})

		Convey("When the request is incomplete", func() {
			Convey("Then a missing book id is rejected", func() {
				res := call(mux, http.MethodPost, "/api/loans/borrow", `{"memberId":1}`)
				So(res.code, ShouldEqual, http.StatusBadRequest)
				So(res.Msg, ShouldEqual, "bookId must not be null")
			})

			Convey("Then an unknown member is not found", func() {
				So(call(mux, http.MethodPost, "/api/loans/borrow", `{"bookId":1,"memberId":9}`).code, ShouldEqual, http.StatusNotFound)
			})

			Convey("Then listing without a member is rejected", func() {
				So(call(mux, http.MethodGet, "/api/loans", "").code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestAnalyticsAPI(t *testing.T) {
	Convey("Given borrows seen from a month later", t, func() {
		later := time.Now().AddDate(0, 1, 0)
		mux := newTestMux(func() time.Time { return later }, api.WithMaxLimit(50))
		for i := 1; i <= 2; i++ {
			call(mux, http.MethodPost, "/api/books",
				fmt.Sprintf(`{"title":"T%d","author":"A","isbn":"isbn-%d","totalCopies":3}`, i, i))
			call(mux, http.MethodPost, "/api/members",
				fmt.Sprintf(`{"name":"M%d","email":"m%d@example.com"}`, i, i))
		}
		So(call(mux, http.MethodPost, "/api/loans/borrow", `{"bookId":2,"memberId":1}`).code, ShouldEqual, http.StatusCreated)
		So(call(mux, http.MethodPost, "/api/loans/borrow", `{"bookId":2,"memberId":2}`).code, ShouldEqual, http.StatusCreated)
		So(call(mux, http.MethodPost, "/api/loans/borrow", `{"bookId":1,"memberId":1}`).code, ShouldEqual, http.StatusCreated)
		So(call(mux, http.MethodPost, "/api/loans/3/return", "").code, ShouldEqual, http.StatusOK)

		Convey("When the top books are requested", func() {
			res := call(mux, http.MethodGet, "/api/analytics/top-books", "")

			Convey("Then borrows are counted and returns are not", func() {
				So(res.code, ShouldEqual, http.StatusOK)
				top := res.list()
				So(top, ShouldHaveLength, 2)
				So(top[0]["bookId"], ShouldEqual, 2.0)
				So(top[0]["borrowCount"], ShouldEqual, 2.0)
				So(top[1]["bookId"], ShouldEqual, 1.0)
				So(top[1]["borrowCount"], ShouldEqual, 1.0)
			})

			Convey("Then the limit is honoured and bounded", func() {
				So(call(mux, http.MethodGet, "/api/analytics/top-books?limit=1", "").list(), ShouldHaveLength, 1)
				So(call(mux, http.MethodGet, "/api/analytics/top-books?limit=0", "").list(), ShouldBeEmpty)
				So(call(mux, http.MethodGet, "/api/analytics/top-books?limit=51", "").code, ShouldEqual, http.StatusBadRequest)
				So(call(mux, http.MethodGet, "/api/analytics/top-books?limit=-1", "").code, ShouldEqual, http.StatusBadRequest)
				So(call(mux, http.MethodGet, "/api/analytics/top-books?limit=x", "").code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When loan events are searched", func() {
			all := call(mux, http.MethodGet, "/api/search/loan-events?size=2", "").object()
			byBook := call(mux, http.MethodGet, "/api/search/loan-events?bookId=1", "").object()
			byMember := call(mux, http.MethodGet, "/api/search/loan-events?memberId=2", "").object()

			Convey("Then every transition is indexed and filters apply", func() {
				So(all["totalElements"], ShouldEqual, 4.0)
				So(all["content"], ShouldHaveLength, 2)
				So(byBook["totalElements"], ShouldEqual, 2.0)
				So(byMember["totalElements"], ShouldEqual, 1.0)
			})

			Convey("Then invalid paging is rejected", func() {
				So(call(mux, http.MethodGet, "/api/search/loan-events?page=-1", "").code, ShouldEqual, http.StatusBadRequest)
				So(call(mux, http.MethodGet, "/api/search/loan-events?size=0", "").code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the overdue report is requested", func() {
			rows := call(mux, http.MethodGet, "/api/reports/overdue-members", "").list()

			Convey("Then members with overdue loans share a dense rank", func() {
				So(rows, ShouldHaveLength, 2)
				So(rows[0]["memberId"], ShouldEqual, 1.0)
				So(rows[0]["overdueCount"], ShouldEqual, 1.0)
				So(rows[0]["rank"], ShouldEqual, 1.0)
				So(rows[1]["memberId"], ShouldEqual, 2.0)
				So(rows[1]["rank"], ShouldEqual, 1.0)
			})
		})
	})
}

func TestOpsEndpoints(t *testing.T) {
	Convey("Given a server with a failing dependency probe", t, func() {
		mux := newTestMux(time.Now, api.WithHealthCheck("store", func(context.Context) error {
			return errors.New("connection refused")
		}))

		Convey("When health is requested", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			Convey("Then it reports the failing probe", func() {
				So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(rec.Body.String(), ShouldContainSubstring, "connection refused")
			})
		})

		Convey("When stats and metrics are requested", func() {
			stats := httptest.NewRecorder()
			mux.ServeHTTP(stats, httptest.NewRequest(http.MethodGet, "/stats", nil))
			prom := httptest.NewRecorder()
			mux.ServeHTTP(prom, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Convey("Then both answer", func() {
				So(stats.Code, ShouldEqual, http.StatusOK)
				So(stats.Body.String(), ShouldContainSubstring, "queue_len")
				So(prom.Code, ShouldEqual, http.StatusOK)
			})
		})
	})

	Convey("Given a request carrying a correlation id", t, func() {
		mux := newTestMux(time.Now)
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		req.Header.Set(api.RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		Convey("Then the id is echoed back", func() {
			So(rec.Header().Get(api.RequestIDHeader), ShouldEqual, "req-123")
		})

		Convey("Then a request without one gets a fresh id", func() {
			res := call(mux, http.MethodGet, "/api/books", "")
			So(res.header.Get(api.RequestIDHeader), ShouldHaveLength, 26)
		})
	})

	Convey("Given a healthy server", t, func() {
		mux := newTestMux(time.Now)
		res := call(mux, http.MethodGet, "/healthz", "")
		So(res.code, ShouldEqual, http.StatusOK)
	})
}
