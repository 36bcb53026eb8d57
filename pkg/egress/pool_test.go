package egress

import "testing"

func endpoint(host string) Endpoint {
	return Endpoint{Scheme: "http", Host: host, Port: 8080, Enabled: true}
}

func TestNewPool_Strategy(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		wantErr  bool
	}{
		{name: "round robin", strategy: StrategyRoundRobin},
		{name: "random", strategy: StrategyRandom},
		{name: "empty defaults to round robin", strategy: ""},
		{name: "unknown", strategy: "sticky", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(tt.strategy, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPool(%q) error = %v, wantErr %v", tt.strategy, err, tt.wantErr)
			}
		})
	}
}

func TestPool_RoundRobinOrder(t *testing.T) {
	pool, err := NewPool(StrategyRoundRobin, []Endpoint{
		endpoint("proxy-a"), endpoint("proxy-b"), endpoint("proxy-c"),
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	want := []string{"proxy-a", "proxy-b", "proxy-c", "proxy-a"}
	for i, host := range want {
		e := pool.Pick(nil)
		if e == nil || e.Host != host {
			t.Fatalf("Pick() #%d = %v, want host %s", i, e, host)
		}
	}
}

func TestPool_RoundRobinSkipsExcluded(t *testing.T) {
	pool, err := NewPool(StrategyRoundRobin, []Endpoint{
		endpoint("proxy-a"), endpoint("proxy-b"), endpoint("proxy-c"),
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	first := pool.Pick(nil)
	if first.Host != "proxy-a" {
		t.Fatalf("first Pick() = %s, want proxy-a", first.Host)
	}

	// Excluding the next in line advances past it.
	exclude := map[string]struct{}{endpoint("proxy-b").Key(): {}}
	second := pool.Pick(exclude)
	if second.Host != "proxy-c" {
		t.Errorf("Pick() with proxy-b excluded = %s, want proxy-c", second.Host)
	}
}

func TestPool_ExclusionFallback(t *testing.T) {
	pool, err := NewPool(StrategyRoundRobin, []Endpoint{
		endpoint("proxy-a"), endpoint("proxy-b"),
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	exclude := map[string]struct{}{
		endpoint("proxy-a").Key(): {},
		endpoint("proxy-b").Key(): {},
	}

	// Everything excluded still yields an endpoint.
	if e := pool.Pick(exclude); e == nil {
		t.Error("Pick() with all excluded = nil, want fallback endpoint")
	}
}

func TestPool_RandomFallbackWhenAllExcluded(t *testing.T) {
	pool, err := NewPool(StrategyRandom, []Endpoint{endpoint("proxy-a")})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	exclude := map[string]struct{}{endpoint("proxy-a").Key(): {}}
	e := pool.Pick(exclude)
	if e == nil || e.Host != "proxy-a" {
		t.Errorf("Pick() = %v, want fallback to proxy-a", e)
	}
}

func TestPool_DisabledNeverSelected(t *testing.T) {
	disabled := endpoint("proxy-b")
	disabled.Enabled = false

	pool, err := NewPool(StrategyRoundRobin, []Endpoint{endpoint("proxy-a"), disabled})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		if e := pool.Pick(nil); e.Host == "proxy-b" {
			t.Fatal("Pick() returned a disabled endpoint")
		}
	}
	if pool.Size() != 1 {
		t.Errorf("Size() = %d, want 1", pool.Size())
	}
}

func TestPool_EmptyPool(t *testing.T) {
	pool, err := NewPool(StrategyRoundRobin, nil)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	if e := pool.Pick(nil); e != nil {
		t.Errorf("Pick() on empty pool = %v, want nil (direct connection)", e)
	}
}

func TestPool_RefreshPreservesRotation(t *testing.T) {
	pool, err := NewPool(StrategyRoundRobin, []Endpoint{
		endpoint("proxy-a"), endpoint("proxy-b"), endpoint("proxy-c"),
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	pool.Pick(nil) // cursor now at proxy-b

	pool.Refresh([]Endpoint{endpoint("proxy-a"), endpoint("proxy-b")})

	if e := pool.Pick(nil); e.Host != "proxy-b" {
		t.Errorf("Pick() after refresh = %s, want rotation to continue at proxy-b", e.Host)
	}
}
