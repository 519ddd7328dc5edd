package middleware

import (
	"net/http"
	"strings"

	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tenant context keys and headers
const (
	TenantIDKey     = "tenant_id"
	ActorKey        = "actor"
	TenantHeaderKey = "X-Tenant-ID"
	ActorHeaderKey  = "X-User-ID"
)

// DefaultTenantID is used when a request carries no tenant header and the
// middleware is not strict. It matches the development tenant of the migrations.
var DefaultTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// MaxActorLength bounds the X-User-ID value stored on links and feedback
const MaxActorLength = 128

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// Required rejects requests without X-Tenant-ID instead of using DefaultTenantID
	Required bool
	// SkipPaths are paths that don't need tenant context (e.g., health check)
	SkipPaths []string
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		Required:  false,
		SkipPaths: []string{"/health", "/healthz", "/ready", "/metrics"},
	}
}

// TenantMiddleware extracts tenant and actor from the request headers
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		tenantID := DefaultTenantID
		if header := strings.TrimSpace(c.GetHeader(TenantHeaderKey)); header != "" {
			parsed, err := uuid.Parse(header)
			if err != nil || parsed == uuid.Nil {
				respondInvalidTenant(c, "X-Tenant-ID must be a UUID")
				return
			}
			tenantID = parsed
		} else if cfg.Required {
			respondInvalidTenant(c, "X-Tenant-ID header is required")
			return
		}

		actor := strings.TrimSpace(c.GetHeader(ActorHeaderKey))
		if len(actor) > MaxActorLength {
			actor = actor[:MaxActorLength]
		}

		c.Set(TenantIDKey, tenantID)
		if actor != "" {
			c.Set(ActorKey, actor)
		}

		ctx := logger.WithTenantID(c.Request.Context(), tenantID.String())
		if actor != "" {
			ctx = logger.WithActor(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)

		if cfg.Logger != nil {
			cfg.Logger.Debug("Tenant identified", zap.String("tenant_id", tenantID.String()))
		}

		c.Next()
	}
}

func respondInvalidTenant(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeValidation, message, c.GetString(RequestIDKey),
	))
}

// GetTenantID retrieves the tenant ID from gin.Context, or uuid.Nil
func GetTenantID(c *gin.Context) uuid.UUID {
	if v, exists := c.Get(TenantIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetActor retrieves the acting user from gin.Context
func GetActor(c *gin.Context) string {
	return c.GetString(ActorKey)
}
