package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridcore/client"
	"gridcore/kernel"
	"gridcore/session"

	"gridcore/batch"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	sub := os.Args[1]
	switch sub {
	case "-h", "--help", "help":
		usage()
		return
	case "serve":
		os.Exit(serveCommand(os.Args[2:]))
	case "client":
		os.Exit(clientCommand(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  gridcore <command> [arguments]\n")
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  serve [flags]            start the session server\n")
	fmt.Fprintf(os.Stderr, "  client [flags]           start the interactive terminal client\n")
	fmt.Fprintf(os.Stderr, "  help                     show this help message\n")
}

func serveCommand(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("listen", "127.0.0.1:4040", "TCP address for the session protocol")
	wsAddr := fs.String("inspect-listen", "", "optional HTTP address for the read-only inspect websocket")
	appName := fs.String("app", "gridcore", "discovery directory app name")
	discoveryDir := fs.String("discovery-dir", "", "override the platform-default discovery directory")
	auditDSN := fs.String("audit-dsn", "", "optional Postgres DSN for the audit journal")
	busEndpoint := fs.String("bus-endpoint", "inproc://gridcore-events", "ZeroMQ PUB endpoint for the internal event bus")
	workbookPath := fs.String("workbook", "", "workbook path recorded in the discovery file (persistence is caller-owned)")
	workbookTitle := fs.String("title", "Untitled", "workbook title recorded in the discovery file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	token, tokenHex, err := newToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridcore: generating token: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "gridcore: session token (pass to clients out of band): %s\n", tokenHex)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := kernel.NewBus(ctx, *busEndpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridcore: starting event bus: %v\n", err)
		return 1
	}
	defer bus.Close()

	engine := batch.NewEngine()

	var audit *session.Audit
	if *auditDSN != "" {
		audit, err = session.NewAudit(ctx, *auditDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gridcore: audit sink disabled, connect failed: %v\n", err)
			audit = nil
		} else {
			defer audit.Close()
		}
	}

	srv := session.NewServer(nil, token)
	var hub *session.InspectHub
	bridge := session.NewBridge(ctx, engine, func(events []batch.Event) {
		bus.Publish(events)
		srv.Broadcast(events)
		if hub != nil {
			hub.Broadcast(events)
		}
	})
	srv.Bridge = bridge
	srv.Audit = audit
	hub = session.NewInspectHub(bridge)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridcore: listen %s: %v\n", *addr, err)
		return 1
	}
	port := ln.Addr().(*net.TCPAddr).Port

	dir := *discoveryDir
	if dir == "" {
		dir, err = session.DiscoveryDir(*appName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gridcore: discovery dir: %v\n", err)
			return 1
		}
	}
	if err := session.SweepStale(dir); err != nil {
		fmt.Fprintf(os.Stderr, "gridcore: sweeping stale discovery files: %v\n", err)
	}
	sessionID := session.NewSessionID()
	info := session.DiscoveryInfo{
		SessionID:       sessionID,
		Port:            port,
		PID:             os.Getpid(),
		WorkbookPath:    *workbookPath,
		WorkbookTitle:   *workbookTitle,
		CreatedAt:       time.Now().Format(time.RFC3339),
		ProtocolVersion: session.ProtocolVersion,
	}
	path, err := session.Write(dir, info)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridcore: writing discovery file: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "gridcore: discovery file %s\n", path)
	defer session.Remove(dir, sessionID)

	if *wsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/inspect", hub.HandleWebSocket)
		go func() {
			if err := http.ListenAndServe(*wsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "gridcore: inspect websocket server: %v\n", err)
			}
		}()
		fmt.Fprintf(os.Stderr, "gridcore: inspect websocket listening on %s\n", *wsAddr)
	}

	fmt.Fprintf(os.Stderr, "gridcore: session %s listening on %s\n", sessionID, ln.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := srv.Serve(ctx, ln); err != nil {
		fmt.Fprintf(os.Stderr, "gridcore: serve: %v\n", err)
		return 1
	}
	return 0
}

func clientCommand(args []string) int {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:4040", "session server address")
	token := fs.String("token", "", "hex-encoded session token")
	sessionID := fs.String("session-id", "cli-client", "client session identifier")
	sheet := fs.Int("sheet", 0, "sheet id to view")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *token == "" {
		fmt.Fprintln(os.Stderr, "gridcore: -token is required")
		return 2
	}

	c, _, err := client.Dial(*addr, *sessionID, *token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridcore: %v\n", err)
		return 1
	}
	defer c.Close()

	if _, err := c.Subscribe(); err != nil {
		fmt.Fprintf(os.Stderr, "gridcore: subscribe: %v\n", err)
	}

	grid := client.NewTermGrid(c, *sheet)
	defer grid.Close()
	if err := grid.Run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "gridcore: %v\n", err)
		return 1
	}
	return 0
}

func newToken() ([32]byte, string, error) {
	var token [32]byte
	if _, err := rand.Read(token[:]); err != nil {
		return token, "", err
	}
	return token, hex.EncodeToString(token[:]), nil
}
