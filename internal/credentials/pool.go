package credentials

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrPoolExhausted = errors.New("all narration credentials are exhausted")

// Credential is one narration API key. Index is its position in the pool and
// is what gets logged; the key itself never is.
type Credential struct {
	Index int
	Key   string
}

func (c Credential) String() string {
	return fmt.Sprintf("credential#%d", c.Index+1)
}

// quotaPhrases are matched case-insensitively against provider errors.
var quotaPhrases = []string{
	"insufficient credits",
	"not enough credits",
	"quota exceeded",
	"quota limit",
	"character limit",
	"character quota",
	"monthly character limit",
	"monthly quota",
	"usage limit",
	"limit exceeded",
}

// IsQuotaError reports whether err says the credential ran out of quota.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range quotaPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

type Option func(*Pool)

func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// Pool hands out credentials round-robin, skipping ones that reported a quota
// error within the cooldown. State is per process.
type Pool struct {
	mu        sync.Mutex
	creds     []Credential
	exhausted map[int]time.Time
	next      int
	cooldown  time.Duration
	now       func() time.Time
}

func NewPool(keys []string, cooldown time.Duration, opts ...Option) *Pool {
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	p := &Pool{
		exhausted: make(map[int]time.Time),
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		p.creds = append(p.creds, Credential{Index: len(p.creds), Key: k})
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pool) Size() int {
	return len(p.creds)
}

// Acquire returns the next usable credential after the one handed out last.
func (p *Pool) Acquire() (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.purgeLocked()
	n := len(p.creds)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if _, out := p.exhausted[idx]; out {
			continue
		}
		p.next = (idx + 1) % n
		return p.creds[idx], nil
	}
	return Credential{}, ErrPoolExhausted
}

func (p *Pool) ReportQuotaError(c Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c.Index < 0 || c.Index >= len(p.creds) {
		return
	}
	p.exhausted[c.Index] = p.now()
}

func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()
	return len(p.creds) - len(p.exhausted)
}

func (p *Pool) purgeLocked() {
	now := p.now()
	for idx, at := range p.exhausted {
		if now.Sub(at) >= p.cooldown {
			delete(p.exhausted, idx)
		}
	}
}
