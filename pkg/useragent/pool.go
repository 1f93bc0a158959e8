// Package useragent supplies browser User-Agent strings for crawler requests.
package useragent

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
)

// Browsers is the built-in list of current desktop browser identities.
var Browsers = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:130.0) Gecko/20100101 Firefox/130.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.6; rv:130.0) Gecko/20100101 Firefox/130.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36 Edg/128.0.0.0",
}

// Mode selects how a Rotator picks the next string.
type Mode string

const (
	Sequential Mode = "sequential"
	Random     Mode = "random"
)

// ParseMode maps a configuration value onto a Mode. Empty means Sequential.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Sequential, nil
	case Sequential, Random:
		return m, nil
	default:
		return "", fmt.Errorf("useragent: unknown mode %q", s)
	}
}

// Rotator hands out User-Agent strings. It is safe for concurrent use.
type Rotator struct {
	mode Mode
	uas  []string
	n    atomic.Uint64
}

// NewRotator copies uas, falling back to Browsers when it is empty.
func NewRotator(mode Mode, uas []string) *Rotator {
	if len(uas) == 0 {
		uas = Browsers
	}
	if mode == "" {
		mode = Sequential
	}
	return &Rotator{mode: mode, uas: append([]string(nil), uas...)}
}

// Next returns a User-Agent according to the rotator's mode.
func (r *Rotator) Next() string {
	if r.mode == Random {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(r.uas))))
		if err == nil {
			return r.uas[n.Int64()]
		}
	}
	i := r.n.Add(1) - 1
	return r.uas[i%uint64(len(r.uas))]
}

// Len reports the number of strings in rotation.
func (r *Rotator) Len() int { return len(r.uas) }
