package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/tokenguard"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		tokens      = flag.Int("tokens", 10000, "number of access tokens to issue")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations in the validate phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		configPath  = flag.String("config", "", "optional YAML config file")
		noCache     = flag.Bool("no-cache", false, "disable the validation cache")
	)
	flag.Parse()

	if *tokens <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "tokens, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg, err := tokenguard.LoadConfig(*configPath)
	if err != nil {
		var cfgErr *tokenguard.ConfigurationError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "JWT.Secret" {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(2)
		}
		cfg = tokenguard.DefaultConfig()
		cfg.JWT.Secret = "loadtest-signing-secret-0123456789"
		cfg.JWT.ServiceSecret = "loadtest-service-secret-0123456789"
	}
	cfg.Cache.Enabled = !*noCache
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	logger, err := tokenguard.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Fatal("failed to start miniredis", zap.Error(err))
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		logger.Info("using miniredis", zap.String("addr", addr))
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		logger.Info("using redis", zap.String("addr", addr))
	}
	defer cleanup()

	engine, err := tokenguard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		WithUserProvider(tokenguard.UserProviderFunc(func(_ context.Context, subject string) (tokenguard.UserRecord, error) {
			return tokenguard.UserRecord{Subject: subject, Permissions: []string{"loadtest"}}, nil
		})).
		Build()
	if err != nil {
		logger.Fatal("engine build failed", zap.Error(err))
	}
	defer engine.Close()

	access := make([]string, *tokens)
	startIssue := time.Now()
	for i := range access {
		access[i], err = engine.IssueAccessToken(ctx, fmt.Sprintf("user-%d", i), "", []string{"loadtest"})
		if err != nil {
			logger.Fatal("issue failed", zap.Error(err))
		}
	}
	logger.Info("issued tokens", zap.Int("count", len(access)), zap.Duration("took", time.Since(startIssue).Round(time.Millisecond)))

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := engine.Validate(ctx, access[r.IntN(len(access))], tokenguard.TokenAccess)
		return err
	})

	// Every refresh token is consumed twice; exactly half the attempts must fail.
	refresh := make([]string, *tokens)
	for i := range refresh {
		refresh[i], err = engine.IssueRefreshToken(ctx, fmt.Sprintf("user-%d", i))
		if err != nil {
			logger.Fatal("issue failed", zap.Error(err))
		}
	}
	refreshStats := runPhase(2*len(refresh), *concurrency, func(_ *rand.Rand, i int) error {
		_, err := engine.Refresh(ctx, refresh[i%len(refresh)])
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh (2x reuse)", refreshStats)
	if refreshStats.failures != int64(len(refresh)) {
		fmt.Printf("WARNING: expected %d refresh rejections, got %d\n", len(refresh), refreshStats.failures)
	}
	cache := engine.CacheStats()
	fmt.Printf("cache: hits=%d misses=%d entries=%d dropped_writes=%d remote_errors=%d\n",
		cache.Hits, cache.Misses, cache.Entries, cache.DroppedWrites, cache.RemoteErrors)
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
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
