package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/teif-firma/internal/application/dto"
)

// SecurityConfig opciones de SignatureSecurity.
type SecurityConfig struct {
	Production   bool
	RequireHTTPS bool
}

// SignatureSecurity cabeceras de seguridad para las rutas de firma. En producción con
// RequireHTTPS rechaza peticiones que no llegaron por HTTPS (según X-Forwarded-Proto).
func SignatureSecurity(cfg SecurityConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Production && cfg.RequireHTTPS && !isHTTPS(c) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Code:    "HTTPS_REQUIRED",
				Message: "las operaciones de firma requieren HTTPS",
			})
		}

		c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate, proxy-revalidate")
		c.Set(fiber.HeaderPragma, "no-cache")
		c.Set(fiber.HeaderExpires, "0")
		c.Set(fiber.HeaderXFrameOptions, "DENY")
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderReferrerPolicy, "strict-origin-when-cross-origin")
		c.Set(fiber.HeaderContentSecurityPolicy, "default-src 'none'; frame-ancestors 'none'")
		if cfg.Production {
			c.Set(fiber.HeaderStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		}
		return c.Next()
	}
}

func isHTTPS(c *fiber.Ctx) bool {
	if proto := c.Get(fiber.HeaderXForwardedProto); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		return strings.EqualFold(strings.TrimSpace(first), "https")
	}
	return c.Protocol() == "https"
}

// ClientIP IP del cliente detrás de proxies: primer salto de X-Forwarded-For,
// luego CF-Connecting-IP y X-Real-IP; por último la IP de la conexión.
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return c.IP()
}
