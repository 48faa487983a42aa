package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type published struct {
	key     string
	payload []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	err   error
	panic bool
}

func (p *fakePublisher) Publish(_ context.Context, key string, payload []byte) error {
	if p.panic {
		panic("transport exploded")
	}
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{key: key, payload: payload})
	return nil
}

func TestEmitter(t *testing.T) {
	Convey("Given a committed loan", t, func() {
		ctx := context.Background()
		t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		loan := model.NewLoan(3, 4, t0, 14)
		loan.ID = 8
		pub := &fakePublisher{}

		Convey("When it is emitted", func() {
			e := NewEmitter(pub,
				WithIDGenerator(func() string { return "evt-8" }),
				WithClock(func() time.Time { return t0.Add(time.Minute) }))
			e.Emit(ctx, model.EventBorrowed, loan)

			Convey("Then one message keyed by loan id carries the event", func() {
				So(len(pub.msgs), ShouldEqual, 1)
				So(pub.msgs[0].key, ShouldEqual, "8")

				ev, degraded, err := Decode(pub.msgs[0].payload)
				So(err, ShouldBeNil)
				So(degraded, ShouldBeEmpty)
				So(ev.EventID, ShouldEqual, "evt-8")
				So(ev.Type, ShouldEqual, model.EventBorrowed)
				So(*ev.OccurredAt, ShouldEqual, t0.Add(time.Minute))
			})
		})

		Convey("When the default id generator is used twice", func() {
			e := NewEmitter(pub)
			e.Emit(ctx, model.EventBorrowed, loan)
			e.Emit(ctx, model.EventBorrowed, loan)

			Convey("Then event ids are distinct", func() {
				a, _, _ := Decode(pub.msgs[0].payload)
				b, _, _ := Decode(pub.msgs[1].payload)
				So(a.EventID, ShouldNotBeEmpty)
				So(a.EventID, ShouldNotEqual, b.EventID)
			})
		})

		Convey("When emission is disabled", func() {
			NewEmitter(pub, WithEnabled(false)).Emit(ctx, model.EventReturned, loan)
			So(pub.msgs, ShouldBeEmpty)
		})

		Convey("When the publisher fails or panics", func() {
			failing := NewEmitter(&fakePublisher{err: errors.New("broker down")})
			panicking := NewEmitter(&fakePublisher{panic: true})

			Convey("Then the caller never sees it", func() {
				So(func() { failing.Emit(ctx, model.EventBorrowed, loan) }, ShouldNotPanic)
				So(func() { panicking.Emit(ctx, model.EventBorrowed, loan) }, ShouldNotPanic)
			})
		})
	})
}
