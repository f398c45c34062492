package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type userState struct {
	email string
	mu    sync.Mutex
	pairs []portalauth.TokenPair
}

func main() {
	var (
		users       = flag.Int("users", 50, "number of accounts to register")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		logins      = flag.Int("logins", 1000, "login operations (spread across users)")
		ops         = flag.Int("ops", 20000, "operations per phase (authenticate + refresh)")
		maxSessions = flag.Int("max-sessions", 5, "per-user session cap")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *logins <= 0 || *ops <= 0 || *maxSessions <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, logins, ops, and max-sessions must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

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
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := portalauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("loadtest-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("loadtest-refresh-secret-0123456789abcde")
	cfg.Session.MaxSessionsPerUser = *maxSessions
	// Cheap hashing keeps the run about Redis, not Argon2.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.UpgradeOnLogin = false

	engine, err := portalauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(memstore.NewUsers()).
		WithTokenStore(memstore.NewTokens()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	const password = "Loadtest1!"
	states := make([]*userState, *users)
	fmt.Printf("registering %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		email := fmt.Sprintf("user-%d@loadtest.local", i)
		if _, err := engine.Register(ctx, email, password, portalauth.Profile{}); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = &userState{email: email}
	}
	fmt.Printf("registered in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runLoginPhase(ctx, engine, states, password, *logins, *concurrency)
	authStats := runAuthenticatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)

	over := 0
	for _, s := range states {
		u, err := engine.Login(ctx, portalauth.LoginRequest{Email: s.email, Password: password})
		if err != nil {
			fmt.Fprintf(os.Stderr, "final login failed: %v\n", err)
			os.Exit(1)
		}
		ids, err := engine.ListSessions(ctx, u.User.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list sessions failed: %v\n", err)
			os.Exit(1)
		}
		if len(ids) > *maxSessions {
			over++
		}
	}
	fmt.Printf("users above session cap (%d): %d\n", *maxSessions, over)
	if over > 0 {
		os.Exit(1)
	}
}

func runLoginPhase(ctx context.Context, engine *portalauth.Engine, states []*userState, password string, ops, concurrency int) phaseStats {
	var (
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return nil
				}
				state := states[i%len(states)]
				t0 := time.Now()
				res, err := engine.Login(ctx, portalauth.LoginRequest{Email: state.email, Password: password})
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					state.mu.Lock()
					state.pairs = append(state.pairs, *res.Tokens)
					state.mu.Unlock()
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runAuthenticatePhase picks random issued access tokens. Tokens whose
// session was evicted by the cap are expected to fail and are counted as
// rejections, not errors.
func runAuthenticatePhase(ctx context.Context, engine *portalauth.Engine, states []*userState, ops, concurrency int) phaseStats {
	var (
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		seed := time.Now().UnixNano() + int64(w)*7919
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return nil
				}
				pair, ok := pick(r, states)
				if !ok {
					continue
				}
				t0 := time.Now()
				_, err := engine.Authenticate(ctx, pair.AccessToken)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *portalauth.Engine, states []*userState, ops, concurrency int) phaseStats {
	var (
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		seed := time.Now().UnixNano() + int64(w)*6151
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return nil
				}
				pair, ok := pick(r, states)
				if !ok {
					continue
				}
				t0 := time.Now()
				_, err := engine.Refresh(ctx, pair.RefreshToken)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func pick(r *rand.Rand, states []*userState) (portalauth.TokenPair, bool) {
	state := states[r.Intn(len(states))]
	state.mu.Lock()
	defer state.mu.Unlock()
	if len(state.pairs) == 0 {
		return portalauth.TokenPair{}, false
	}
	return state.pairs[r.Intn(len(state.pairs))], true
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
	fmt.Printf("%s: ops=%d rejected=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
