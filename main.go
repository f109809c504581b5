// ABOUTME: Entry point for the klok clock
// ABOUTME: Parses CLI flags and configuration, then runs the clock application
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sidnlabs/klok/internal/app"
	"github.com/sidnlabs/klok/internal/config"
	"github.com/sidnlabs/klok/internal/version"
)

var (
	configFile     = flag.String("config", "", "TOML configuration file; flags override its values")
	serverAddr     = flag.String("server", "", "Time server address host:port (default: discover via mDNS)")
	path           = flag.String("path", "", "Websocket path on the time server (default: /time)")
	secure         = flag.Bool("secure", false, "Connect with wss:// instead of ws://")
	logFile        = flag.String("log-file", "klok.log", "Log file path")
	noTUI          = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	metricsAddr    = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	requestTimeout = flag.Duration("request-timeout", 0, "Give up on a sync reply after this long (default: 10s, negative disables)")
)

func main() {
	flag.Parse()

	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := config.Overlay(flag.CommandLine, cfg.Client.Flags()); err != nil {
			log.Fatalf("%v", err)
		}
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s", version.String())

	clock := app.New(app.Config{
		ServerAddr:     *serverAddr,
		Path:           *path,
		Secure:         *secure,
		RequestTimeout: *requestTimeout,
		MetricsAddr:    *metricsAddr,
		UseTUI:         useTUI,
	})

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down", sig)
		clock.Stop()
	}()

	if err := clock.Run(); err != nil {
		log.Fatalf("Clock error: %v", err)
	}
}
