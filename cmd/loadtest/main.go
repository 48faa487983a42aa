package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/booklend/internal/loadtest"
	"github.com/okian/booklend/pkg/logger"
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:8080", "Base URL of the lending service")
		analyticsURL = flag.String("analytics-url", "", "Base URL of the analytics endpoints (default: same as -url)")
		members      = flag.Int("members", loadtest.DefaultMembers, "Members competing for the book")
		copies       = flag.Int("copies", loadtest.DefaultCopies, "Copies of the contested book")
		timeout      = flag.Duration("timeout", loadtest.DefaultTimeout, "HTTP request timeout")
		settle       = flag.Duration("settle", loadtest.DefaultSettleWithin, "How long top-books may lag behind the borrows")
		verbose      = flag.Bool("verbose", false, "Log every unexpected failure")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err := loadtest.Run(ctx, &loadtest.Config{
		BaseURL:      *baseURL,
		AnalyticsURL: *analyticsURL,
		Members:      *members,
		Copies:       *copies,
		Timeout:      *timeout,
		SettleWithin: *settle,
		Verbose:      *verbose,
	})
	if err != nil {
		_, _ = os.Stderr.WriteString("load test failed: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
