package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MsgRateLimited is returned when a client exceeds its request budget.
const MsgRateLimited = "Demasiadas solicitudes. Intente nuevamente en unos segundos."

// RateLimiter keeps one token bucket per client. The set of tracked clients
// is bounded; the least recently seen client is forgotten first.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	logger   *logrus.Logger
}

// NewRateLimiter allows perMinute requests per client with the given burst.
func NewRateLimiter(perMinute, burst, maxClients int, logger *logrus.Logger) (*RateLimiter, error) {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 10
	}
	if maxClients <= 0 {
		maxClients = 4096
	}

	cache, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		limiters: cache,
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		logger:   logger,
	}, nil
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters.Get(key); ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters.Add(key, limiter)
	return limiter
}

// Allow reports whether the client may proceed now, and if not, how long it
// should wait.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	limiter := rl.limiterFor(key)
	reservation := limiter.Reserve()
	if !reservation.OK() {
		return false, time.Minute
	}
	delay := reservation.Delay()
	if delay == 0 {
		return true, 0
	}
	reservation.Cancel()
	return false, delay
}

// Middleware rejects over-budget requests with 429. Authenticated callers are
// keyed by user id, others by client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if state := StateFrom(c); state.Authenticated() {
			key = "user:" + state.UserID()
		}

		ok, wait := rl.Allow(key)
		if ok {
			c.Next()
			return
		}

		rl.logger.WithFields(logrus.Fields{
			"client":         key,
			"retry_after":    wait.String(),
			"correlation_id": c.GetString(CorrelationIDKey),
		}).Warn("Rate limit exceeded")

		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": MsgRateLimited})
	}
}
