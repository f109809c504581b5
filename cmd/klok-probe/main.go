// ABOUTME: Probe that measures the local system clock against a klok server
// ABOUTME: Runs one sampling round and prints the best sample and the deviation
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sidnlabs/klok/internal/client"
	"github.com/sidnlabs/klok/internal/clock"
	"github.com/sidnlabs/klok/internal/protocol"
	"github.com/sidnlabs/klok/internal/sync"
)

var (
	serverAddr = flag.String("server", "localhost:8123", "Server address")
	path       = flag.String("path", client.DefaultPath, "Websocket path")
	secure     = flag.Bool("secure", false, "Connect with wss://")
	samples    = flag.Int("samples", sync.DefaultCapacity, "Samples per round")
	timeout    = flag.Duration("timeout", 5*time.Second, "Reply timeout")
)

func wallMillis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	fmt.Println("=== klok probe ===")
	fmt.Printf("Sampling %s %d times\n\n", *serverAddr, *samples)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := client.NewClient(client.Config{
		ServerAddr: *serverAddr,
		Path:       *path,
		Secure:     *secure,
	}).Dial(ctx)
	if err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer conn.Close()

	replies := make(chan protocol.ServerTime, 1)
	closed := make(chan error, 1)
	conn.Listen(client.Handlers{
		OnMessage: func(msg protocol.ServerTime) { replies <- msg },
		OnClose:   func(err error) { closed <- err },
	})

	// Samples use the wall clock so the offset is the system clock deviation
	window := sync.NewWindow(*samples)
	var leap protocol.LeapIndicator
	for i := 0; i < window.Capacity(); i++ {
		sent := wallMillis(time.Now())
		if err := conn.Send(protocol.ClientTime{C: sent}); err != nil {
			log.Fatalf("Send failed: %v", err)
		}

		select {
		case reply := <-replies:
			received := wallMillis(time.Now())
			sample := sync.NewSample(sent, received, reply.S, reply.E)
			window.Push(sample)
			leap = reply.L
			fmt.Printf("  #%d  offset %+9.3f ms  rtt %7.3f ms  uncertainty %.3f ms\n",
				i+1, sample.Offset, sample.RoundTrip, sample.ServerUncertainty)
		case err := <-closed:
			log.Fatalf("Connection closed: %v", err)
		case <-time.After(*timeout):
			log.Fatalf("No reply after %s", *timeout)
		}
	}

	best, err := window.Best()
	if err != nil {
		log.Fatalf("%v", err)
	}
	accuracy, err := window.AccuracyMs()
	if err != nil {
		log.Fatalf("%v", err)
	}

	now := time.Now()
	corrected := now.Add(-time.Duration(best.Offset * float64(time.Millisecond)))

	fmt.Println()
	fmt.Printf("Best sample:  offset %+.3f ms, rtt %.3f ms\n", best.Offset, best.RoundTrip)
	fmt.Printf("Accuracy:     ± %d ms\n", accuracy)
	fmt.Printf("Leap:         %s\n", leap)
	fmt.Printf("System clock: %s\n", clock.OffsetText(now, corrected))

	if leap == protocol.LeapNotInSync {
		os.Exit(2)
	}
}
