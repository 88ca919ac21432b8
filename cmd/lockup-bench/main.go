package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-lockup/v1/presets"
)

var (
	concurrency = flag.Int("c", 16, "Concurrent holders")
	cycles      = flag.Int("n", 10000, "Lock/unlock cycles per holder")
	amount      = flag.Uint64("amount", 10, "Tokens per lock")
)

// Each worker owns one holder and runs lock -> unlock cycles against a
// shared in-memory lockup, exercising the mutation path end to end.
func main() {
	flag.Parse()

	runID, err := uuid.GenerateUUID()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	lk, lg := presets.NewInMemoryStandalone()

	for i := 0; i < *concurrency; i++ {
		holder := fmt.Sprintf("holder-%d", i)
		if err := lg.Mint(ctx, holder, *amount); err != nil {
			log.Fatal(err)
		}
	}

	var ops atomic.Uint64
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *concurrency; i++ {
		holder := fmt.Sprintf("holder-%d", i)
		g.Go(func() error {
			for n := 0; n < *cycles; n++ {
				if err := lk.Lock(gctx, holder, "bench", *amount, 0); err != nil {
					return fmt.Errorf("%s lock: %w", holder, err)
				}
				if _, err := lk.Unlock(gctx, holder); err != nil {
					return fmt.Errorf("%s unlock: %w", holder, err)
				}
				ops.Add(2)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}

	elapsed := time.Since(start)
	fmt.Printf("run=%s holders=%d ops=%d elapsed=%s ops/sec=%.0f\n",
		runID, *concurrency, ops.Load(), elapsed.Round(time.Millisecond),
		float64(ops.Load())/elapsed.Seconds())
}
