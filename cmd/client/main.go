package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pessolato/randmicroservice/pkg/client"
	"github.com/pessolato/randmicroservice/pkg/logging"
	"github.com/pessolato/randmicroservice/pkg/osutil"
)

func main() {
	endpointUrl := ""
	numOfReqs := 1000
	concurrency := 1
	httpVersion := 1
	timeout := 5 * time.Second
	readyTimeout := 30 * time.Second
	logLevel := "info"
	osutil.ExitOnErr(
		osutil.Load(
			osutil.NewEnvVar("TARGET_ENDPOINT_URI", &endpointUrl, true),
			osutil.NewEnvVar("NUMBER_OF_REQUESTS", &numOfReqs, false),
			osutil.NewEnvVar("CONCURRENCY", &concurrency, false),
			osutil.NewEnvVar("CLIENT_HTTP_VERSION", &httpVersion, false),
			osutil.NewEnvVar("REQUEST_TIMEOUT", &timeout, false),
			osutil.NewEnvVar("READY_TIMEOUT", &readyTimeout, false),
			osutil.NewEnvVar("CLIENT_LOG_LEVEL", &logLevel, false),
		))
	_, err := url.Parse(endpointUrl)
	osutil.ExitOnErr(err)
	lvl, err := logging.ParseLevel(logLevel)
	osutil.ExitOnErr(err)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointUrl, nil)
	osutil.ExitOnErr(err)

	c, err := client.NewSamplingClient(req, logger, client.HttpVersion(httpVersion), timeout)
	osutil.ExitOnErr(err)

	osutil.ExitOnErr(c.WaitReady(ctx, 200*time.Millisecond, readyTimeout))

	err = c.Run(ctx, numOfReqs, concurrency, c.LogErr)
	osutil.ExitOnErr(err)
}
