package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slatenotes/slate/internal/metrics"
	"github.com/slatenotes/slate/internal/remote"
)

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.logger.Writer()))
	r.Use(gin.RecoveryWithWriter(s.logger.Writer()))
	r.Use(observe())

	api := r.Group("/api")
	api.GET("/status", s.status)
	api.GET("/health", s.health)
	api.GET("/metrics", gin.WrapH(metrics.Handler()))

	authed := api.Group("", s.requireKey())
	authed.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWebSocket(c.Writer, c.Request)
	})

	data := authed.Group("", s.requireDB())
	data.GET("/folders", s.listFolders)
	data.POST("/folders", s.createFolder)
	data.PUT("/folders/:id", s.updateFolder)
	data.DELETE("/folders/:id", s.deleteFolder)

	data.GET("/notes", s.listNotes)
	data.POST("/notes", s.createNote)
	data.PUT("/notes/:id", s.updateNote)
	data.DELETE("/notes/:id", s.deleteNote)

	data.GET("/search", s.search)

	return r
}

// requireKey rejects requests whose X-API-Key does not match. A missing or
// empty header is allowed through.
func (s *Server) requireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		want := s.currentKey()
		got := c.GetHeader(remote.APIKeyHeader)
		if want == "" || got == "" {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) requireDB() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.db == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Database not configured"})
			return
		}
		c.Next()
	}
}

// observe records request counts and latency by route template.
func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.APIRequestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
