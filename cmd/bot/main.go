package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"relaybot/internal/app"
	"relaybot/internal/config"
)

func main() {
	def := os.Getenv("CONFIG_PATH")
	if def == "" {
		def = "./config.yaml"
	}
	var (
		cfgPath string
		envFile string
	)
	flag.StringVar(&cfgPath, "config", def, "path to config (json or yaml)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(context.Background()); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	var jobDone <-chan struct{}
	h, err := a.RunJob(ctx)
	switch {
	case err == nil:
		jobDone = h.Done()
	case errors.Is(err, app.ErrNoJob) && a.LiveCleaning():
		fmt.Println("no job configured; live cleaning only")
	case errors.Is(err, app.ErrNoJob):
		fmt.Println("nothing to do: add a job section or enable relay.live_clean in", cfgPath)
		stop(a, app.StopFatalError)
		os.Exit(1)
	default:
		fmt.Println("fatal job:", err)
		stop(a, app.StopFatalError)
		os.Exit(1)
	}

	// The job runs under the app context; a signal stops it through Stop.
	reason := app.StopSignal
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-a.Done():
			reason = app.StopFatalError
			break wait
		case <-jobDone:
			if a.LiveCleaning() {
				jobDone = nil
				continue
			}
			reason = app.StopJobDone
			break wait
		}
	}
	stop(a, reason)
	if reason == app.StopFatalError {
		os.Exit(1)
	}
}

func stop(a *app.App, reason app.StopReason) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)
}
