package api

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	setupRoutes(r, handler, apiAccessKey)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	// Protocol endpoints, reachable by peer installations without a key
	protocol := r.Group("/friends/v1")
	{
		protocol.POST("/friend-request", handler.ReceiveFriendRequest)
		protocol.POST("/accept-friend-request", handler.ReceiveAcceptFriendRequest)
		protocol.GET("/indieauth", handler.IndieAuth)
		protocol.POST("/post-deleted", handler.ReceivePostDeleted)
	}

	// Public feed of local posts; a valid friend token unlocks the private
	// parts
	r.GET("/feed", handler.GetFeed)

	r.GET("/health", handler.HealthCheck)
	r.GET("/stats", handler.GetStats)

	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.GET("/friends", handler.ListFriends)
			api.POST("/friends", handler.SendFriendRequest)
			api.GET("/friends/:id", handler.GetFriend)
			api.POST("/friends/:id/accept", handler.AcceptFriendRequest)
			api.DELETE("/friends/:id", handler.DeleteFriend)
			api.GET("/friends/:id/posts", handler.ListFriendPosts)
			api.GET("/friends/:id/subscriptions", handler.ListSubscriptions)
			api.POST("/friends/:id/subscriptions", handler.AddSubscription)
			api.PUT("/friends/:id/rules", handler.SaveRules)
			api.GET("/friends/:id/rules", handler.GetRules)
			api.POST("/friends/:id/refresh", handler.RefreshFriend)
			api.PATCH("/subscriptions/:id", handler.SetSubscriptionActive)
			api.DELETE("/subscriptions/:id", handler.DeleteSubscription)
			api.GET("/discover", handler.Discover)
			api.POST("/posts", handler.CreateLocalPost)
			api.DELETE("/posts/:id", handler.DeleteLocalPost)
		}
		log.Printf("API endpoints enabled with authentication")
	} else {
		log.Printf("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
