package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowAllOrigins  bool
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

func ProductionCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{
			"https://riderx.app",
			"https://*.riderx.app",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-Response-Time"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
}

func DevelopmentCORSConfig() CORSConfig {
	cfg := ProductionCORSConfig()
	cfg.AllowAllOrigins = true
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

// CORS returns a CORS middleware with the given configuration
func CORS(config CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" {
			if isOriginAllowed(config, origin) {
				setOriginHeaders(c, config, origin)
			} else {
				logrus.Warnf("CORS: Origin not allowed: %s", origin)
			}
		}

		// Handle preflight requests
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", strings.Join(config.AllowMethods, ", "))
			c.Header("Access-Control-Allow-Headers", strings.Join(config.AllowHeaders, ", "))
			if config.MaxAge > 0 {
				c.Header("Access-Control-Max-Age", strconv.Itoa(int(config.MaxAge.Seconds())))
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if len(config.ExposeHeaders) > 0 {
			c.Header("Access-Control-Expose-Headers", strings.Join(config.ExposeHeaders, ", "))
		}
		c.Next()
	}
}

func setOriginHeaders(c *gin.Context, config CORSConfig, origin string) {
	if config.AllowAllOrigins && !config.AllowCredentials {
		c.Header("Access-Control-Allow-Origin", "*")
	} else {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
	}
	if config.AllowCredentials {
		c.Header("Access-Control-Allow-Credentials", "true")
	}
}

func isOriginAllowed(config CORSConfig, origin string) bool {
	if config.AllowAllOrigins {
		return true
	}

	for _, allowedOrigin := range config.AllowOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
		// Support wildcard subdomains (e.g., https://*.example.com)
		if i := strings.Index(allowedOrigin, "*."); i >= 0 {
			scheme, domain := allowedOrigin[:i], allowedOrigin[i+2:]
			if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, "."+domain) {
				return true
			}
		}
	}

	return false
}

// CORSMiddleware selects the CORS configuration for the environment
func CORSMiddleware(environment string) gin.HandlerFunc {
	if environment == "production" {
		return CORS(ProductionCORSConfig())
	}
	return CORS(DevelopmentCORSConfig())
}
