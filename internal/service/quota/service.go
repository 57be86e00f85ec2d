// Package quota enforces per-caller message rates for the public and member
// chat endpoints.
package quota

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
)

// Tier selects the policy applied to a caller.
type Tier string

const (
	TierPublic Tier = "public"
	TierMember Tier = "member"
)

type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

func newPool(perMinute float64, burst int) *limiterPool {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiterPool{
		m:     make(map[string]*rate.Limiter),
		limit: rate.Every(time.Duration(float64(time.Minute) / perMinute)),
		burst: burst,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(p.limit, p.burst)
	p.m[key] = l
	return l
}

// Service holds one limiter per caller key and tier.
type Service struct {
	public *limiterPool
	member *limiterPool
	now    func() time.Time
}

// NewService creates limiter pools from configuration.
func NewService(cfg config.QuotaConfig) *Service {
	return &Service{
		public: newPool(cfg.PublicPerMinute, cfg.PublicBurst),
		member: newPool(cfg.MemberPerMinute, cfg.MemberBurst),
		now:    time.Now,
	}
}

// Allow consumes one message from key's budget and reports whether it was
// available.
func (s *Service) Allow(tier Tier, key string) bool {
	pool := s.public
	if tier == TierMember {
		pool = s.member
	}
	return pool.get(key).AllowN(s.now(), 1)
}
