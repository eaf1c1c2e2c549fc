package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func SetupRoutes(router *gin.Engine, h *Handlers, hub *Hub) {
	// Enable CORS
	router.Use(CORSMiddleware())

	router.GET("/", h.Root)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.POST("/connect", h.Connect)

		api.GET("/screenshot", h.Screenshot)
		api.GET("/screenshot/raw", h.ScreenshotRaw)

		// Input routes
		api.POST("/tap", h.Tap)
		api.POST("/tap/display", h.TapDisplay)
		api.POST("/swipe", h.Swipe)
		api.POST("/text", h.Text)
		api.POST("/key", h.Key)
		api.POST("/shell", h.Shell)

		api.POST("/debug/save-screenshot", h.SaveDebugScreenshot)

		api.GET("/actions", h.GetActions)
		patterns := api.Group("/patterns")
		{
			patterns.PUT("", h.PutPattern)
			patterns.GET("/:signature", h.GetPatterns)
		}
	}

	// WebSocket route
	router.GET("/ws", func(c *gin.Context) {
		HandleWebSocket(hub, c)
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestLogger logs each request through zerolog. Health checks and
// websocket upgrades are logged at debug.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := zerolog.InfoLevel
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			level = zerolog.WarnLevel
		case c.FullPath() == "/health" || c.FullPath() == "/ws":
			level = zerolog.DebugLevel
		}

		log.WithLevel(level).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP")
	}
}
