package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
	obscontext "github.com/smallbiznis/kitties/internal/observability/context"
	"github.com/smallbiznis/kitties/internal/observability/logger"
	"go.uber.org/zap"
)

const contextPrincipalKey = "principal"

// BearerAuthRequired resolves the caller from the Authorization header.
func (s *Server) BearerAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tokens == nil {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		principal, err := s.tokens.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextPrincipalKey, principal)
		c.Request = c.Request.WithContext(obscontext.WithPrincipal(c.Request.Context(), principal.String()))
		c.Next()
	}
}

// BodyLimit caps request bodies at HTTPMaxBodyBytes.
func (s *Server) BodyLimit() gin.HandlerFunc {
	limit := s.cfg.HTTPMaxBodyBytes
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// MutationRateLimit throttles writes per caller when a limiter is configured.
func (s *Server) MutationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		principal := callerFrom(c)
		ctx := c.Request.Context()
		res, err := s.limiter.Allow(ctx, principal.String())
		if err != nil {
			logger.FromContext(ctx).Warn("mutation rate limit check failed", zap.Error(err))
		}
		if res != nil && !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) domain.PrincipalID {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return ""
	}
	principal, _ := value.(domain.PrincipalID)
	return principal
}
