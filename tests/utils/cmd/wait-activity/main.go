package main

import (
	"context"
	"flag"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/storage"
)

// pendingFunc reports how many entries a queue still holds.
type pendingFunc func(ctx context.Context) (int32, error)

// waitDrained polls pending until it reports zero on stable consecutive polls.
func waitDrained(ctx context.Context, interval time.Duration, stable int, pending pendingFunc) error {
	if stable < 1 {
		stable = 1
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	empty := 0
	for {
		count, err := pending(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			log.Infof("activity queue has %d pending entries", count)
			empty = 0
		} else if empty++; empty >= stable {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func main() {
	var (
		connStr  string
		queue    string
		timeout  time.Duration
		interval time.Duration
		stable   int
	)
	flag.StringVar(&connStr, "connection-string", os.Getenv("STORAGE_CONNECTION_STRING"), "Azure Storage connection string")
	flag.StringVar(&queue, "queue", "board-activity", "activity queue to monitor")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "maximum time to wait for the queue to drain")
	flag.DurationVar(&interval, "interval", 2*time.Second, "polling interval")
	flag.IntVar(&stable, "stable", 3, "consecutive empty polls required")
	flag.Parse()

	if connStr == "" {
		log.Fatal("connection-string is required")
	}
	q, err := storage.NewActivityQueue(connStr, queue)
	if err != nil {
		log.Fatalf("activity queue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := waitDrained(ctx, interval, stable, q.Pending); err != nil {
		log.Fatalf("queue wait failed: %v", err)
	}
	log.Info("activity queue drained")
}
