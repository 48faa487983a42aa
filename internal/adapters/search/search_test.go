package search

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/booklend/internal/domain/model"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func event(id string, book, member int64, at time.Time) model.LoanEvent {
	loan := int64(100)
	return model.LoanEvent{
		EventID:    id,
		Type:       model.EventBorrowed,
		LoanID:     &loan,
		BookID:     &book,
		MemberID:   &member,
		OccurredAt: &at,
	}
}

func ids(p model.Page[model.LoanEvent]) []string {
	out := make([]string, 0, len(p.Items))
	for _, ev := range p.Items {
		out = append(out, ev.EventID)
	}
	return out
}

func indexContract(idx Index) {
	ctx := context.Background()

	Convey("When the index is empty", func() {
		p, err := idx.FindAll(ctx, 0, 20)
		So(err, ShouldBeNil)
		So(p.Items, ShouldBeEmpty)
		So(p.Total, ShouldEqual, 0)
	})

	Convey("When five events across two books and two members are indexed", func() {
		So(idx.Upsert(ctx, event("e1", 1, 10, t0)), ShouldBeNil)
		So(idx.Upsert(ctx, event("e2", 1, 11, t0.Add(time.Minute))), ShouldBeNil)
		So(idx.Upsert(ctx, event("e3", 2, 10, t0.Add(2*time.Minute))), ShouldBeNil)
		So(idx.Upsert(ctx, event("e4", 1, 10, t0.Add(3*time.Minute))), ShouldBeNil)
		So(idx.Upsert(ctx, event("e5", 2, 11, t0.Add(3*time.Minute))), ShouldBeNil)

		Convey("Then FindAll pages newest first with ties by event id descending", func() {
			p, err := idx.FindAll(ctx, 0, 3)
			So(err, ShouldBeNil)
			So(ids(p), ShouldResemble, []string{"e5", "e4", "e3"})
			So(p.Total, ShouldEqual, 5)
			So(p.Page, ShouldEqual, 0)
			So(p.Size, ShouldEqual, 3)

			p, _ = idx.FindAll(ctx, 1, 3)
			So(ids(p), ShouldResemble, []string{"e2", "e1"})

			p, _ = idx.FindAll(ctx, 5, 3)
			So(p.Items, ShouldBeEmpty)
			So(p.Total, ShouldEqual, 5)
		})

		Convey("Then FindByBook only returns that book", func() {
			p, err := idx.FindByBook(ctx, 1, 0, 20)
			So(err, ShouldBeNil)
			So(ids(p), ShouldResemble, []string{"e4", "e2", "e1"})
			So(p.Total, ShouldEqual, 3)
		})

		Convey("Then FindByMember only returns that member", func() {
			p, err := idx.FindByMember(ctx, 11, 0, 20)
			So(err, ShouldBeNil)
			So(ids(p), ShouldResemble, []string{"e5", "e2"})
		})

		Convey("Then an unknown book has no hits", func() {
			p, err := idx.FindByBook(ctx, 99, 0, 20)
			So(err, ShouldBeNil)
			So(p.Items, ShouldBeEmpty)
			So(p.Total, ShouldEqual, 0)
		})
	})

	Convey("When the same event is delivered twice", func() {
		ev := event("dup", 3, 30, t0)
		So(idx.Upsert(ctx, ev), ShouldBeNil)
		So(idx.Upsert(ctx, ev), ShouldBeNil)

		Convey("Then exactly one document exists", func() {
			p, err := idx.FindAll(ctx, 0, 20)
			So(err, ShouldBeNil)
			So(p.Total, ShouldEqual, 1)
			So(ids(p), ShouldResemble, []string{"dup"})
		})
	})

	Convey("When an event is overwritten with a different book", func() {
		So(idx.Upsert(ctx, event("moved", 3, 30, t0)), ShouldBeNil)
		So(idx.Upsert(ctx, event("moved", 4, 30, t0)), ShouldBeNil)

		Convey("Then it is only found under the new book", func() {
			old, _ := idx.FindByBook(ctx, 3, 0, 20)
			So(old.Items, ShouldBeEmpty)
			cur, _ := idx.FindByBook(ctx, 4, 0, 20)
			So(ids(cur), ShouldResemble, []string{"moved"})
			So(*cur.Items[0].BookID, ShouldEqual, 4)
		})
	})

	Convey("When an event lacks identifiers and occurredAt", func() {
		So(idx.Upsert(ctx, event("dated", 5, 50, t0)), ShouldBeNil)
		So(idx.Upsert(ctx, model.LoanEvent{EventID: "bare", Type: model.EventReturned}), ShouldBeNil)

		Convey("Then it is listed last and only by FindAll", func() {
			p, _ := idx.FindAll(ctx, 0, 20)
			So(ids(p), ShouldResemble, []string{"dated", "bare"})
			So(p.Items[1].BookID, ShouldBeNil)
			So(p.Items[1].OccurredAt, ShouldBeNil)
		})
	})

	Convey("When many events are indexed", func() {
		for i := 0; i < 25; i++ {
			So(idx.Upsert(ctx, event(fmt.Sprintf("m%02d", i), 7, 70, t0.Add(time.Duration(i)*time.Second))), ShouldBeNil)
		}

		Convey("Then the last partial page is returned", func() {
			p, err := idx.FindByMember(ctx, 70, 2, 10)
			So(err, ShouldBeNil)
			So(len(p.Items), ShouldEqual, 5)
			So(p.Items[0].EventID, ShouldEqual, "m04")
			So(p.Total, ShouldEqual, 25)
		})

		Convey("Then a page whose offset overflows int is empty", func() {
			for _, pg := range []struct{ page, size int }{
				{461168601842738791, 20},
				{1 << 62, 4},
				{math.MaxInt, 1},
			} {
				p, err := idx.FindAll(ctx, pg.page, pg.size)
				So(err, ShouldBeNil)
				So(p.Items, ShouldBeEmpty)
				So(p.Total, ShouldEqual, 25)
				So(p.Page, ShouldEqual, pg.page)
			}
		})
	})
}

func TestBounds(t *testing.T) {
	Convey("Given paging input", t, func() {
		start, stop := bounds(2, 10)
		So(start, ShouldEqual, 20)
		So(stop, ShouldEqual, 30)

		start, stop = bounds(1<<62, 4)
		So(start, ShouldBeGreaterThan, 0)
		So(stop, ShouldEqual, math.MaxInt)
		So(stop-start, ShouldEqual, 4)
	})
}

func TestMemoryIndex(t *testing.T) {
	Convey("Given an in-memory search index", t, func() {
		indexContract(NewMemoryIndex())
	})
}

func TestRedisIndex(t *testing.T) {
	Convey("Given a redis-backed search index", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		Reset(func() {
			_ = client.Close()
			mr.FlushAll()
		})

		indexContract(NewRedisIndex(client, "test:events"))

		Convey("When documents are written", func() {
			So(NewRedisIndex(client, "").Upsert(context.Background(), event("k1", 1, 2, t0)), ShouldBeNil)

			Convey("Then keys live under the configured prefix", func() {
				So(mr.Exists(DefaultPrefix+":doc:k1"), ShouldBeTrue)
				So(mr.Exists(DefaultPrefix+":idx:book:1"), ShouldBeTrue)
				So(mr.Exists(DefaultPrefix+":idx:member:2"), ShouldBeTrue)
			})
		})
	})
}
