// ABOUTME: Entry point for the klok time server
// ABOUTME: Parses CLI flags and configuration, then serves reference time over websockets
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sidnlabs/klok/internal/config"
	"github.com/sidnlabs/klok/internal/server"
)

var (
	configFile        = flag.String("config", "", "TOML configuration file; flags override its values")
	host              = flag.String("host", "", "Listen address (default: all interfaces)")
	port              = flag.Int("port", server.DefaultPort, "HTTP server port")
	name              = flag.String("name", "", "Server friendly name (default: hostname-klok)")
	path              = flag.String("path", server.DefaultPath, "Websocket path")
	staticDir         = flag.String("static-dir", "", "Serve static files from this directory")
	certFile          = flag.String("cert", "", "TLS certificate file")
	keyFile           = flag.String("key", "", "TLS key file")
	ntpHost           = flag.String("ntp", server.DefaultNTPHost, "Upstream NTP server; empty serves the local clock")
	ntpTimeout        = flag.Duration("ntp-timeout", server.DefaultNTPTimeout, "Upstream NTP query timeout")
	reportUncertainty = flag.Bool("report-uncertainty", false, "Report upstream root distance to clocks")
	enableMDNS        = flag.Bool("mdns", false, "Advertise the server via mDNS")
	noTUI             = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	logFile           = flag.String("log-file", "klok-server.log", "Log file path")
	debug             = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := config.Overlay(flag.CommandLine, cfg.Server.Flags()); err != nil {
			log.Fatalf("%v", err)
		}
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	// Determine server name
	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-klok", hostname)
	}

	var source server.TimeSource = server.LocalSource{}
	if *ntpHost != "" {
		source = server.NewNTPSource(*ntpHost, *ntpTimeout, *reportUncertainty)
		log.Printf("Relaying time from %s", *ntpHost)
	} else {
		log.Printf("Serving the local clock")
	}

	log.Printf("Starting klok server: %s on port %d", serverName, *port)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", *logFile)

	srv := server.New(server.Config{
		Host:       *host,
		Port:       *port,
		Name:       serverName,
		Path:       *path,
		StaticDir:  *staticDir,
		CertFile:   *certFile,
		KeyFile:    *keyFile,
		EnableMDNS: *enableMDNS,
		Debug:      *debug,
		UseTUI:     useTUI,
	}, source)

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}
