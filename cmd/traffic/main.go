package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"safeflag/client"
	v1 "safeflag/pkg/api/v1"

	"golang.org/x/time/rate"
)

var (
	addr     = flag.String("addr", "http://localhost:8080", "SafeFlag server address")
	env      = flag.String("env", "Production", "Environment to evaluate and watch")
	sdkKey   = flag.String("key", "", "SDK key for stream watchers")
	keys     = flag.String("flags", "checkout_v2", "Comma separated flag keys to evaluate")
	hitRate  = flag.Int("rps", 50, "Evaluations per second across all workers")
	workers  = flag.Int("c", 8, "Concurrent evaluation workers")
	watchers = flag.Int("watchers", 0, "Stream clients to hold open")
	rampUp   = flag.Duration("ramp", 10*time.Second, "Ramp up duration for watchers")
	duration = flag.Duration("d", time.Minute, "How long to generate traffic")
)

var (
	hitsOK        int64
	hitsFailed    int64
	activeClients int64
	connectErrors int64
	messagesRx    int64
	latencySum    int64 // milliseconds
	latencyCount  int64
)

func main() {
	flag.Parse()

	flagKeys := strings.Split(*keys, ",")
	fmt.Printf("Generating traffic against %s (%s)\n", *addr, *env)
	fmt.Printf("   Flags: %v | rps: %d | workers: %d | watchers: %d\n", flagKeys, *hitRate, *workers, *watchers)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go report(ctx)

	var wg sync.WaitGroup
	limiter := rate.NewLimiter(rate.Limit(*hitRate), *workers)
	sdk := client.NewSafeFlagClient(*addr, *env, *sdkKey)
	defer sdk.Close()
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for n := id; ; n++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				key := strings.TrimSpace(flagKeys[n%len(flagKeys)])
				if err := sdk.ReportHit(ctx, key); err != nil {
					if ctx.Err() != nil {
						return
					}
					if atomic.AddInt64(&hitsFailed, 1) == 1 {
						fmt.Printf("Error reporting hit: %v\n", err)
					}
					continue
				}
				atomic.AddInt64(&hitsOK, 1)
			}
		}(i)
	}

	if *watchers > 0 {
		interval := *rampUp / time.Duration(*watchers)
		for i := 0; i < *watchers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				watch(ctx, id)
			}(i)
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}

	wg.Wait()
	fmt.Printf("Done. hits ok=%d failed=%d\n", atomic.LoadInt64(&hitsOK), atomic.LoadInt64(&hitsFailed))
}

func report(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msgs := atomic.SwapInt64(&messagesRx, 0)
			latSum := atomic.SwapInt64(&latencySum, 0)
			latCnt := atomic.SwapInt64(&latencyCount, 0)
			avgLat := float64(0)
			if latCnt > 0 {
				avgLat = float64(latSum) / float64(latCnt)
			}
			fmt.Printf("[%s] Hits: %d ok / %d failed | Watchers: %d | Errors: %d | Msgs/s: %d | Avg gap: %.2f ms\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&hitsOK), atomic.LoadInt64(&hitsFailed),
				atomic.LoadInt64(&activeClients), atomic.LoadInt64(&connectErrors),
				msgs, avgLat)
		}
	}
}

// watch holds one stream open and measures the gap between consecutive updates.
func watch(ctx context.Context, id int) {
	u := fmt.Sprintf("%s/v1/stream/watch?env=%s", strings.TrimRight(*addr, "/"), url.QueryEscape(*env))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		fmt.Printf("Watcher %d error: %v\n", id, err)
		return
	}
	req.Header.Set(client.KeyHeader, *sdkKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := (&http.Client{Timeout: 0}).Do(req)
	if err != nil {
		if atomic.AddInt64(&connectErrors, 1) == 1 {
			fmt.Printf("Error connecting: %v\n", err)
		}
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if atomic.AddInt64(&connectErrors, 1) == 1 {
			fmt.Printf("Error status code: %d\n", resp.StatusCode)
		}
		return
	}

	atomic.AddInt64(&activeClients, 1)
	defer atomic.AddInt64(&activeClients, -1)

	last := time.Now()
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data:")
		if !ok {
			continue
		}
		var msg v1.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil || msg.Key == "" {
			continue
		}
		atomic.AddInt64(&messagesRx, 1)
		gap := time.Since(last).Milliseconds()
		last = time.Now()
		atomic.AddInt64(&latencySum, gap)
		atomic.AddInt64(&latencyCount, 1)
	}
}
