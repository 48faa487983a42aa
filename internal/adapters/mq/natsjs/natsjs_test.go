package natsjs

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/booklend/pkg/logger"
)

func init() {
	logger.Init()
}

type handlerFunc func(ctx context.Context, payload []byte)

func (f handlerFunc) Handle(ctx context.Context, payload []byte) { f(ctx, payload) }

func TestTransport(t *testing.T) {
	Convey("Given a transport that was never started", t, func() {
		tr := New(nil, WithSubjectPrefix("lib.events."), WithStream("S"), WithDurable("d"))

		Convey("Then subjects are keyed by loan id", func() {
			So(tr.Subject("42"), ShouldEqual, "lib.events.42")
			So(tr.Subject(""), ShouldEqual, "lib.events.unkeyed")
		})

		Convey("Then publishing and subscribing fail fast", func() {
			So(errors.Is(tr.Publish(context.Background(), "1", []byte("{}")), ErrNotRunning), ShouldBeTrue)
			So(errors.Is(tr.Subscribe(context.Background(), handlerFunc(func(context.Context, []byte) {})), ErrNotRunning), ShouldBeTrue)
		})

		Convey("Then closing is a no-op", func() {
			So(tr.Close(context.Background()), ShouldBeNil)
		})
	})

	Convey("Given a delivery", t, func() {
		tr := New(nil)
		acks := 0
		ack := func(...nats.AckOpt) error { acks++; return nil }

		Convey("When the handler succeeds", func() {
			var got []byte
			tr.deliver(context.Background(), handlerFunc(func(_ context.Context, p []byte) { got = p }), []byte("x"), ack)

			Convey("Then the payload reaches it and the message is acked", func() {
				So(string(got), ShouldEqual, "x")
				So(acks, ShouldEqual, 1)
			})
		})

		Convey("When the handler panics", func() {
			So(func() {
				tr.deliver(context.Background(), handlerFunc(func(context.Context, []byte) { panic("boom") }), []byte("x"), ack)
			}, ShouldNotPanic)

			Convey("Then the message is still acked", func() {
				So(acks, ShouldEqual, 1)
			})
		})

		Convey("When the subscribing context was cancelled before the delivery", func() {
			type ctxKey struct{}
			parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "trace"))
			cancel()

			var handlerErr error
			var value any
			tr.deliver(parent, handlerFunc(func(ctx context.Context, _ []byte) {
				handlerErr = ctx.Err()
				value = ctx.Value(ctxKey{})
			}), []byte("x"), ack)

			Convey("Then the handler runs on a live context that keeps its values", func() {
				So(handlerErr, ShouldBeNil)
				So(value, ShouldEqual, "trace")
				So(acks, ShouldEqual, 1)
			})
		})

		Convey("When the ack fails", func() {
			failing := func(...nats.AckOpt) error { return nats.ErrConnectionClosed }

			Convey("Then the failure stays inside the transport", func() {
				So(func() {
					tr.deliver(context.Background(), handlerFunc(func(context.Context, []byte) {}), nil, failing)
				}, ShouldNotPanic)
			})
		})
	})
}
