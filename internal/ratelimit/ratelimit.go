package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket. The bucket starts full, refills at rate tokens
// per second, and never holds more than burst tokens.
type Limiter struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
}

func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      float64(burst),
		tokens:     float64(burst),
		lastUpdate: time.Now(),
		now:        time.Now,
	}
}

// Allow spends one token if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastUpdate = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

type client struct {
	limiter  *Limiter
	lastSeen time.Time
}

// PerClient keys one Limiter per client id and evicts ids not seen for
// idleAfter so the map does not grow with every address that ever connected.
type PerClient struct {
	mu      sync.Mutex
	clients map[string]*client

	rate      float64
	burst     int
	idleAfter time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

const (
	evictInterval = 5 * time.Minute
	idleAfter     = 10 * time.Minute
)

func NewPerClient(rate float64, burst int) *PerClient {
	p := &PerClient{
		clients:   make(map[string]*client),
		rate:      rate,
		burst:     burst,
		idleAfter: idleAfter,
		stop:      make(chan struct{}),
	}
	go p.evictLoop()
	return p
}

// Allow spends one token from the client's bucket, creating the bucket on
// first sight.
func (p *PerClient) Allow(clientID string) bool {
	p.mu.Lock()
	c, ok := p.clients[clientID]
	if !ok {
		c = &client{limiter: NewLimiter(p.rate, p.burst)}
		p.clients[clientID] = c
	}
	c.lastSeen = time.Now()
	p.mu.Unlock()

	return c.limiter.Allow()
}

func (p *PerClient) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *PerClient) evictLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-p.idleAfter)
			p.mu.Lock()
			for id, c := range p.clients {
				if c.lastSeen.Before(cutoff) {
					delete(p.clients, id)
				}
			}
			p.mu.Unlock()
		}
	}
}
