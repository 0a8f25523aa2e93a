package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"financeflow/internal/cli"
	"financeflow/internal/notify"
	"financeflow/internal/notify/client"
)

// financeflow-listen connects to the notification endpoint with a token and
// prints every event as a JSON line on stdout.
func main() {
	cli.LoadEnvFile()

	url := flag.String("url", envOr("FINANCEFLOW_URL", "http://localhost:3000"), "server base URL")
	token := flag.String("token", os.Getenv("FINANCEFLOW_TOKEN"), "access token")
	origin := flag.String("origin", os.Getenv("CLIENT_ORIGIN"), "Origin header to send")
	transports := flag.String("transports", notify.TransportWebSocket+","+notify.TransportPolling, "transports to try, in order")
	attempts := flag.Int("reconnect-attempts", client.DefaultReconnectionAttempts, "reconnection attempts before giving up")
	delay := flag.Duration("reconnect-delay", client.DefaultReconnectionDelay, "delay between reconnection attempts")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	logger := cli.SetupLogger(*logLevel, "text")
	if *token == "" {
		logger.Error("A token is required (-token or FINANCEFLOW_TOKEN)")
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	c, err := client.New(client.Options{
		URL:                  *url,
		Token:                *token,
		Origin:               *origin,
		Transports:           strings.Split(*transports, ","),
		ReconnectionAttempts: *attempts,
		ReconnectionDelay:    *delay,
		OnEvent: func(ev notify.Event) {
			if err := enc.Encode(ev); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		},
		OnStateChange: func(s client.State) {
			logger.Info("Connection state changed", "state", s.String())
		},
	})
	if err != nil {
		logger.Error("Invalid options", "error", err)
		os.Exit(2)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	start := time.Now()
	err = c.Run(ctx)
	status := c.Status()
	logger.Info("Listener stopped",
		"session_id", status.SessionID,
		"transport", status.Transport,
		"uptime", time.Since(start).Round(time.Second))
	if errors.Is(err, client.ErrReconnectFailed) {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
