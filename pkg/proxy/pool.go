// Package proxy rotates outbound crawler traffic across a list of proxies,
// benching any proxy that keeps failing.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool never held.
var ErrUnknownProxy = errors.New("proxy: not in pool")

// Config tunes proxy health tracking.
type Config struct {
	// MaxFailures is the failure streak that benches a proxy. Default 3.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out. Default 5m.
	Cooldown time.Duration
	// Now overrides the clock.
	Now func() time.Time
}

type entry struct {
	url      *url.URL
	failures int
	uses     int
	benched  time.Time
}

// Pool hands out proxies round robin. The zero value is not usable; call New.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	entries []*entry
	byURL   map[string]*entry
	next    int
}

// New returns an empty pool.
func New(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{cfg: cfg, byURL: make(map[string]*entry)}
}

// Add registers proxies. A missing scheme means http. Duplicates are ignored.
func (p *Pool) Add(raw ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !strings.Contains(r, "://") {
			r = "http://" + r
		}
		u, err := url.Parse(r)
		if err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: %q has no host", r)
		}
		key := u.String()
		if _, ok := p.byURL[key]; ok {
			continue
		}
		e := &entry{url: u}
		p.entries = append(p.entries, e)
		p.byURL[key] = e
	}
	return nil
}

// Load reads one proxy per line. Blank lines and '#' comments are skipped.
func (p *Pool) Load(r io.Reader) error {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	return p.Add(lines...)
}

// LoadFile reads a proxy list from fsys. A nil fsys means the OS filesystem.
func (p *Pool) LoadFile(fsys afero.Fs, path string) error {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	f, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer f.Close()
	return p.Load(f)
}

// Len reports how many proxies the pool holds, benched or not.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not benched, or nil when none is
// available. A nil pool always returns nil.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.cfg.Now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)
		if !e.benched.IsZero() {
			if now.Before(e.benched) {
				continue
			}
			e.benched = time.Time{}
			e.failures = 0
		}
		e.uses++
		return e.url
	}
	return nil
}

// MarkSuccess shortens the failure streak of u.
func (p *Pool) MarkSuccess(u *url.URL) error {
	return p.update(u, func(e *entry) {
		if e.failures > 0 {
			e.failures--
		}
	})
}

// MarkFailure extends the failure streak of u and benches it once the streak
// reaches MaxFailures.
func (p *Pool) MarkFailure(u *url.URL) error {
	return p.update(u, func(e *entry) {
		e.failures++
		if e.failures >= p.cfg.MaxFailures {
			e.benched = p.cfg.Now().Add(p.cfg.Cooldown)
		}
	})
}

func (p *Pool) update(u *url.URL, fn func(*entry)) error {
	if u == nil {
		return errors.New("proxy: nil url")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byURL[u.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProxy, u)
	}
	fn(e)
	return nil
}
