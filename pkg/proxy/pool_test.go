package proxy

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func nextN(p *Pool, n int) []string {
	var out []string
	for i := 0; i < n; i++ {
		u := p.Next()
		if u == nil {
			out = append(out, "<nil>")
			continue
		}
		out = append(out, u.String())
	}
	return out
}

func TestPool_RoundRobin(t *testing.T) {
	pool := New(Config{})
	if err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050", "127.0.0.1:8080"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("Len = %d, want 3 (duplicate ignored)", pool.Len())
	}

	got := strings.Join(nextN(pool, 4), " ")
	want := "http://127.0.0.1:8080 http://127.0.0.1:8081 socks5://127.0.0.1:9050 http://127.0.0.1:8080"
	if got != want {
		t.Errorf("rotation = %s, want %s", got, want)
	}
}

func TestPool_Bench(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pool := New(Config{
		MaxFailures: 2,
		Cooldown:    time.Minute,
		Now:         func() time.Time { return now },
	})
	if err := pool.Add("http://a", "http://b"); err != nil {
		t.Fatal(err)
	}

	a := pool.Next()
	_ = pool.MarkFailure(a)
	_ = pool.MarkFailure(a)

	if got := strings.Join(nextN(pool, 3), " "); got != "http://b http://b http://b" {
		t.Errorf("while a is benched got %s", got)
	}

	now = now.Add(2 * time.Minute)
	if got := strings.Join(nextN(pool, 2), " "); got != "http://a http://b" {
		t.Errorf("after cooldown got %s", got)
	}
}

func TestPool_SuccessForgivesFailure(t *testing.T) {
	pool := New(Config{MaxFailures: 2})
	_ = pool.Add("http://a")
	a := pool.Next()

	_ = pool.MarkFailure(a)
	_ = pool.MarkSuccess(a)
	_ = pool.MarkFailure(a)

	if u := pool.Next(); u == nil {
		t.Error("proxy benched despite an intervening success")
	}
}

func TestPool_AllBenched(t *testing.T) {
	pool := New(Config{MaxFailures: 1, Cooldown: time.Hour})
	_ = pool.Add("http://a")
	_ = pool.MarkFailure(pool.Next())

	if u := pool.Next(); u != nil {
		t.Errorf("Next = %v, want nil", u)
	}
}

func TestPool_LoadFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := "\n# upstream list\nhttp://proxy1.com\nproxy2.com:80\n\nsocks5://proxy3.com:1080\n"
	if err := afero.WriteFile(fsys, "proxies.txt", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	pool := New(Config{})
	if err := pool.LoadFile(fsys, "proxies.txt"); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	got := strings.Join(nextN(pool, 3), " ")
	want := "http://proxy1.com http://proxy2.com:80 socks5://proxy3.com:1080"
	if got != want {
		t.Errorf("loaded = %s, want %s", got, want)
	}

	if err := pool.LoadFile(fsys, "missing.txt"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPool_MarkUnknown(t *testing.T) {
	pool := New(Config{})
	_ = pool.Add("http://a")
	u, _ := url.Parse("http://unknown")

	if err := pool.MarkSuccess(u); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("MarkSuccess err = %v, want ErrUnknownProxy", err)
	}
	if err := pool.MarkFailure(u); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("MarkFailure err = %v, want ErrUnknownProxy", err)
	}
}

func TestPool_EmptyAndNil(t *testing.T) {
	if u := New(Config{}).Next(); u != nil {
		t.Errorf("empty pool Next = %v", u)
	}
	var p *Pool
	if u := p.Next(); u != nil || p.Len() != 0 {
		t.Error("nil pool should hand out nothing")
	}
}
