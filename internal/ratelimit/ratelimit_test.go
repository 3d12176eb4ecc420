package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/labforge/lims-admin/internal/settings"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiter_FixedMinuteWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 15, 5, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "u:1", 3, base.Add(time.Duration(i)*time.Second))
		if err != nil || !res.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v (%v)", i, res, err)
		}
		if res.Remaining != 2-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 2-i, res.Remaining)
		}
	}
	res, _ := limiter.Allow(ctx, "u:1", 3, base.Add(30*time.Second))
	if res.Allowed {
		t.Fatalf("expected fourth request in the window to be limited")
	}
	if want := time.Date(2026, 3, 2, 10, 16, 0, 0, time.UTC); !res.Reset.Equal(want) {
		t.Fatalf("expected reset %s, got %s", want, res.Reset)
	}
	if got := res.RetryAfter(base.Add(30 * time.Second)); got != 25 {
		t.Fatalf("expected retry after 25s, got %d", got)
	}

	other, _ := limiter.Allow(ctx, "u:2", 3, base.Add(30*time.Second))
	if !other.Allowed {
		t.Fatalf("expected a different key to have its own budget")
	}
	next, _ := limiter.Allow(ctx, "u:1", 3, base.Add(time.Minute))
	if !next.Allowed || next.Remaining != 2 {
		t.Fatalf("expected a fresh window, got %+v", next)
	}
}

func TestMemoryLimiter_ZeroLimitIsUnlimited(t *testing.T) {
	limiter := NewMemoryLimiter()
	for i := 0; i < 10; i++ {
		res, _ := limiter.Allow(context.Background(), "u:1", 0, time.Now())
		if !res.Allowed {
			t.Fatalf("expected unlimited")
		}
	}
}

func TestKeys(t *testing.T) {
	if KeyForUser(0) != "" || KeyForUser(42) != "u:42" {
		t.Fatalf("unexpected user keys")
	}
	if KeyForClient(" ") != "" || KeyForClient("10.0.0.1") != "ip:10.0.0.1" {
		t.Fatalf("unexpected client keys")
	}
}

func TestLoadSettingsConfig(t *testing.T) {
	if cfg := LoadSettingsConfig(nil); cfg.Limit != settings.DefaultRateLimitPerMinute || cfg.RedisPrefix != settings.DefaultRateLimitRedisPrefix {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	snap := settings.NewSnapshot()
	snap.Replace(map[string]any{
		settings.APIRateLimitPerMinuteKey: int64(5),
		settings.RateLimitRedisEnabledKey: true,
		settings.RateLimitRedisAddrKey:    " 127.0.0.1:6379 ",
		settings.RateLimitRedisDBKey:      int64(-3),
		settings.RateLimitRedisPrefixKey:  "",
	}, time.Now())
	cfg := LoadSettingsConfig(snap)
	if cfg.Limit != 5 || !cfg.RedisEnabled || cfg.RedisAddr != "127.0.0.1:6379" || cfg.RedisDB != 0 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.RedisPrefix != settings.DefaultRateLimitRedisPrefix {
		t.Fatalf("expected empty prefix to fall back, got %q", cfg.RedisPrefix)
	}
}

func TestManager_FallsBackToMemoryWhenRedisIsDown(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	dials := 0
	provider := func() SettingsConfig {
		return SettingsConfig{Limit: 2, RedisEnabled: true, RedisAddr: "127.0.0.1:1", RedisPrefix: "test"}
	}
	factory := func(opts *redis.Options) *redis.Client {
		dials++
		opts.DialTimeout = 100 * time.Millisecond
		opts.MaxRetries = -1
		return redis.NewClient(opts)
	}
	manager := NewManager(provider, func() time.Time { return now }, factory)
	defer func() { _ = manager.Close() }()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := manager.AllowUser(ctx, 7)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v (%v)", i, res, err)
		}
	}
	res, err := manager.AllowUser(ctx, 7)
	if err != nil || res.Allowed {
		t.Fatalf("expected the memory backend to enforce the limit, got %+v (%v)", res, err)
	}
	if dials != 1 {
		t.Fatalf("expected the breaker to stop redial attempts, got %d dials", dials)
	}

	now = now.Add(redisBreakerDuration + time.Second)
	if _, err = manager.AllowUser(ctx, 7); err != nil {
		t.Fatalf("allow after breaker: %v", err)
	}
	if dials != 2 {
		t.Fatalf("expected a redial once the breaker expired, got %d dials", dials)
	}
}

func TestManager_NilAndUnlimited(t *testing.T) {
	var nilManager *Manager
	if res, _ := nilManager.AllowUser(context.Background(), 1); !res.Allowed {
		t.Fatalf("expected nil manager to allow")
	}
	manager := NewManager(func() SettingsConfig { return SettingsConfig{} }, nil, nil)
	for i := 0; i < 5; i++ {
		if res, _ := manager.AllowUser(context.Background(), 1); !res.Allowed {
			t.Fatalf("expected zero limit to allow")
		}
	}
}
