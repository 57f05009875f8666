// Command session-loadtest drives many concurrent refreshes through the
// client runtime against an in-process authority and reports how many
// exchanges the single-flight coordinator actually sent.
package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/testauthority"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		sessions     = flag.Int("sessions", 50, "number of logged-in clients")
		concurrency  = flag.Int("concurrency", 32, "concurrent callers per client in each burst")
		bursts       = flag.Int("bursts", 20, "refresh bursts per client")
		refreshDelay = flag.Duration("refresh-delay", 20*time.Millisecond, "latency added to every authority refresh")
		backend      = flag.String("store", "memory", "client token store: memory or redis")
		redisAddr    = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *bursts <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and bursts must be > 0")
		os.Exit(2)
	}

	authority, err := testauthority.New(testauthority.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "authority: %v\n", err)
		os.Exit(1)
	}
	authority.SetRefreshDelay(*refreshDelay)
	upstream := httptest.NewServer(authority.Handler())
	defer upstream.Close()

	serverCfg := goSession.DefaultConfig()
	serverCfg.Pipeline.BaseURL = upstream.URL
	serverCfg.BFF.InsecureCookies = true
	srv, err := goSession.New().WithConfig(serverCfg).BuildServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()
	front := httptest.NewServer(srv.Handler())
	defer front.Close()

	var rdb redis.UniversalClient
	if goSession.StoreBackend(*backend) == goSession.StoreRedis {
		var cleanup func()
		rdb, cleanup, err = openRedis(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
	}

	ctx := context.Background()
	clients := make([]*goSession.Client, *sessions)
	fmt.Printf("logging in %d clients (%s store)...\n", *sessions, *backend)
	startLogin := time.Now()
	for i := range clients {
		cfg := goSession.DefaultConfig()
		cfg.Pipeline.BaseURL = front.URL
		cfg.Pipeline.OriginURL = front.URL
		cfg.Store.Backend = goSession.StoreBackend(*backend)
		cfg.Store.RedisPrefix = fmt.Sprintf("lt%d", i)

		b := goSession.New().WithConfig(cfg)
		if rdb != nil {
			b = b.WithRedis(rdb)
		}
		c, err := b.Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "client %d: %v\n", i, err)
			os.Exit(1)
		}
		defer c.Close()
		if _, err := c.Login(ctx, "admin@order.com", "123456"); err != nil {
			fmt.Fprintf(os.Stderr, "login %d: %v\n", i, err)
			os.Exit(1)
		}
		clients[i] = c
	}
	fmt.Printf("logged in in %s\n", time.Since(startLogin).Round(time.Millisecond))

	freshStats := runPhase(ctx, clients, *concurrency, *bursts, (*goSession.Client).EnsureFresh)
	before := authority.Calls(testauthority.Refresh)
	forceStats := runPhase(ctx, clients, *concurrency, *bursts, (*goSession.Client).ForceRefresh)
	exchanges := authority.Calls(testauthority.Refresh) - before

	var joined uint64
	for _, c := range clients {
		joined += c.MetricsSnapshot().Counters[goSession.MetricRefreshJoined]
	}

	fmt.Println("---- results ----")
	printStats("ensure-fresh", freshStats)
	printStats("force-refresh", forceStats)
	fmt.Printf("exchanges=%d callers=%d joined=%d ideal=%d\n",
		exchanges, forceStats.ops, joined, *sessions**bursts)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runPhase fires concurrency simultaneous calls at every client, bursts
// times, and records each call's latency.
func runPhase(ctx context.Context, clients []*goSession.Client, concurrency, bursts int, call func(*goSession.Client, context.Context) error) phaseStats {
	var (
		wg        sync.WaitGroup
		failures  int64
		latencies = make([]time.Duration, 0, len(clients)*concurrency*bursts)
		mu        sync.Mutex
	)

	start := time.Now()
	for _, c := range clients {
		wg.Add(1)
		go func(c *goSession.Client) {
			defer wg.Done()
			for b := 0; b < bursts; b++ {
				var burst sync.WaitGroup
				gate := make(chan struct{})
				for w := 0; w < concurrency; w++ {
					burst.Add(1)
					go func() {
						defer burst.Done()
						<-gate
						t0 := time.Now()
						err := call(c, ctx)
						d := time.Since(t0)
						if err != nil {
							atomic.AddInt64(&failures, 1)
						}
						mu.Lock()
						latencies = append(latencies, d)
						mu.Unlock()
					}()
				}
				close(gate)
				burst.Wait()
			}
		}(c)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
