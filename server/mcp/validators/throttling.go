package validators

import (
	"github.com/relay4ai/mcp/shared"
	"golang.org/x/time/rate"
)

// Session parameter keys. The per-second and per-minute overrides let the
// authenticator grant individual users a different budget; the limiter pair
// is cached on the session so state dies with it.
const (
	PerMinuteParamKey = "rate_limit_per_minute"
	PerSecondParamKey = "rate_limit_per_second"
	limitersParamKey  = "rate_limiters"
)

// Throttling limits the message rate per session with two token buckets: a
// per-second bucket against bursts and a per-minute bucket against sustained
// load. A budget of 0 disables the corresponding bucket.
type Throttling struct {
	perSecond int
	perMinute int
}

// NewThrottling creates a throttling validator with the given default
// per-session budgets.
func NewThrottling(perSecond, perMinute int) *Throttling {
	return &Throttling{
		perSecond: perSecond,
		perMinute: perMinute,
	}
}

type sessionLimiters struct {
	perSecond *rate.Limiter
	perMinute *rate.Limiter
}

// limitersFor returns the session's cached limiter pair, building it from the
// defaults and any per-user overrides on first use.
func (t *Throttling) limitersFor(session shared.ISession) *sessionLimiters {
	params := session.GetParams()
	if cached, ok := params.Load(limitersParamKey); ok {
		if limiters, ok := cached.(*sessionLimiters); ok && limiters != nil {
			return limiters
		}
	}

	perSecond := t.perSecond
	if override, ok := params.Load(PerSecondParamKey); ok {
		if v, ok := override.(int); ok && v > 0 {
			perSecond = v
		}
	}
	perMinute := t.perMinute
	if override, ok := params.Load(PerMinuteParamKey); ok {
		if v, ok := override.(int); ok && v > 0 {
			perMinute = v
		}
	}

	limiters := &sessionLimiters{}
	if perSecond > 0 {
		limiters.perSecond = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	if perMinute > 0 {
		limiters.perMinute = rate.NewLimiter(rate.Limit(perMinute)/60.0, perMinute)
	}
	params.Store(limitersParamKey, limiters)
	return limiters
}

// Validate implements the MessageValidator interface.
func (t *Throttling) Validate(msg *shared.Message) error {
	if msg.Session == nil {
		return nil
	}
	limiters := t.limitersFor(msg.Session)

	if limiters.perSecond != nil && !limiters.perSecond.Allow() {
		return &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorResourceLimit,
			Message: "per-second rate limit exceeded",
		}
	}
	if limiters.perMinute != nil && !limiters.perMinute.Allow() {
		return &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorResourceLimit,
			Message: "per-minute rate limit exceeded",
		}
	}
	return nil
}
