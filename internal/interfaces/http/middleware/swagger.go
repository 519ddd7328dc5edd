package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// SwaggerConfig gates the /swagger UI
type SwaggerConfig struct {
	Enabled bool
	// AllowedIPs accepts plain addresses and CIDR ranges. Empty allows everyone.
	AllowedIPs []string
}

// ipAllowlist is the parsed form of SwaggerConfig.AllowedIPs; unparseable entries are skipped
type ipAllowlist []*net.IPNet

func parseAllowlist(entries []string) ipAllowlist {
	var list ipAllowlist
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				continue
			}
			bits := 8 * net.IPv6len
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 8*net.IPv4len
			}
			list = append(list, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			list = append(list, network)
		}
	}
	return list
}

func (l ipAllowlist) contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, network := range l {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// SwaggerProtection answers 404 while the docs are disabled and 403 to
// clients outside the allowlist.
func SwaggerProtection(cfg SwaggerConfig) gin.HandlerFunc {
	allowlist := parseAllowlist(cfg.AllowedIPs)
	restricted := len(cfg.AllowedIPs) > 0

	return func(c *gin.Context) {
		requestID := c.GetString(RequestIDKey)
		if !cfg.Enabled {
			c.AbortWithStatusJSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeNotFound, "API documentation is not available", requestID))
			return
		}
		if restricted && !allowlist.contains(net.ParseIP(c.ClientIP())) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeForbidden, "Access to API documentation is restricted", requestID))
			return
		}
		c.Next()
	}
}
