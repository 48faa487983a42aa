package loadtest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/booklend/internal/adapters/http/api"
	service "github.com/okian/booklend/internal/app"
	"github.com/okian/booklend/internal/config"
	"github.com/okian/booklend/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestRun(t *testing.T) {
	Convey("Given a running library service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		svc := service.New(config.New(ctx))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		mux := http.NewServeMux()
		api.NewServer(svc.Catalog(), svc.Lending(), svc.Analytics(), svc).Register(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When ten members race for three copies", func() {
			stats, err := Run(ctx, &Config{
				BaseURL:      srv.URL,
				Members:      10,
				Copies:       3,
				Timeout:      5 * time.Second,
				SettleWithin: 5 * time.Second,
			})

			Convey("Then exactly three win and the ranking catches up", func() {
				So(err, ShouldBeNil)
				So(stats.Borrowed, ShouldEqual, 3)
				So(stats.Conflicts, ShouldEqual, 7)
				So(stats.Returned, ShouldEqual, 3)
				So(stats.FinalAvailable, ShouldEqual, 3)
				So(stats.PopularityScore, ShouldEqual, 3)
			})
		})

		Convey("When there are fewer members than copies", func() {
			stats, err := Run(ctx, &Config{BaseURL: srv.URL, Members: 2, Copies: 4, Timeout: 5 * time.Second, SettleWithin: 5 * time.Second})

			Convey("Then everyone borrows", func() {
				So(err, ShouldBeNil)
				So(stats.Borrowed, ShouldEqual, 2)
				So(stats.Conflicts, ShouldEqual, 0)
			})
		})
	})

	Convey("Given an unreachable service", t, func() {
		_, err := Run(context.Background(), &Config{BaseURL: "http://127.0.0.1:1", Members: 1, Copies: 1, Timeout: time.Second})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "health check")
	})

	Convey("Given an invalid configuration", t, func() {
		_, err := Run(context.Background(), &Config{Members: 0})
		So(err, ShouldNotBeNil)
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a run where one copy was oversold", t, func() {
		cfg := &Config{Members: 5, Copies: 2}
		stats := &Stats{Borrowed: 3, Conflicts: 2, Returned: 3, FinalAvailable: 2, PopularityScore: 3}

		Convey("Then verification fails", func() {
			err := verify(cfg, stats)
			So(errors.Is(err, ErrVerification), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "3 borrows succeeded, want 2")
		})
	})

	Convey("Given a run whose ranking lagged", t, func() {
		cfg := &Config{Members: 5, Copies: 2}
		stats := &Stats{Borrowed: 2, Conflicts: 3, Returned: 2, FinalAvailable: 2, PopularityScore: 1}

		Convey("Then verification names the ranking", func() {
			err := verify(cfg, stats)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "popularity score 1")
		})
	})
}
