package main

import (
	"context"
	"flag"
	"fleet-hub/auth"
	"fleet-hub/infrastructure/ws"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	HubURL   string `envconfig:"HUB_URL" default:"ws://localhost:8080/hub"`
	Token    string `envconfig:"HUB_TOKEN"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
	Colours  bool   `envconfig:"HUBWATCH_COLOURS" default:"true"`

	// Only read with -mint, for local development against a hub sharing the secret.
	JWTSecret   string `envconfig:"JWT_SECRET"`
	JWTIssuer   string `envconfig:"JWT_ISSUER"`
	JWTAudience string `envconfig:"JWT_AUDIENCE"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hubwatch error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	agents := flag.String("agents", "", "comma separated agent ids to follow")
	mint := flag.String("mint", "", "mint a token for this username with JWT_SECRET instead of HUB_TOKEN")
	roles := flag.String("roles", "", "comma separated roles for -mint")
	heartbeat := flag.Duration("heartbeat", 30*time.Second, "heartbeat period, 0 disables")
	flag.Parse()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours
	log := logs.GetLoggerFromString(config.LogLevel)

	token := config.Token
	if *mint != "" {
		gate := auth.NewGate(auth.GateConfig{
			Secret:   []byte(config.JWTSecret),
			Issuer:   config.JWTIssuer,
			Audience: config.JWTAudience,
		}, log, nil)
		minted, err := gate.Issue(*mint, *mint, splitList(*roles), time.Hour)
		if err != nil {
			return exitConfig, fmt.Errorf("mint token: %w", err)
		}
		token = minted
	}

	target, err := hubURL(config.HubURL, token)
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return exitRuntime, fmt.Errorf("could not connect to %s (%s): %w", config.HubURL, resp.Status, err)
		}
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.HubURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()
	log.Info("Connected, Ctrl+C to quit", "hub", config.HubURL)

	for _, id := range splitList(*agents) {
		if err := conn.WriteJSON(ws.ClientFrame{Type: ws.OpJoinAgentGroup, AgentID: id}); err != nil {
			return exitRuntime, fmt.Errorf("join %s: %w", id, err)
		}
	}

	frames := make(chan ws.ServerFrame)
	readErr := make(chan error, 1)
	go func() {
		for {
			var frame ws.ServerFrame
			if err := conn.ReadJSON(&frame); err != nil {
				readErr <- err
				return
			}
			frames <- frame
		}
	}()

	var beat <-chan time.Time
	if *heartbeat > 0 {
		ticker := time.NewTicker(*heartbeat)
		defer ticker.Stop()
		beat = ticker.C
	}

	printer := newPrinter(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case err := <-readErr:
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("read error: %w", err)
		case <-beat:
			if err := conn.WriteJSON(ws.ClientFrame{Type: ws.OpHeartbeat}); err != nil {
				return exitRuntime, fmt.Errorf("heartbeat: %w", err)
			}
		case frame := <-frames:
			if err := printer.Print(frame); err != nil {
				log.Warn("Unreadable frame", "type", frame.Type, "error", err)
			}
		}
	}
}

func hubURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid HUB_URL %q: %w", raw, err)
	}
	if token != "" {
		q := u.Query()
		q.Set(auth.AccessTokenParam, token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
