package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"peerpress/app/database"
	"peerpress/app/feed"
	"peerpress/app/protocol"
)

func NewHandler(friendRepo database.FriendRepository, subRepo database.SubscriptionRepository,
	postRepo database.PostRepository, localPostRepo database.LocalPostRepository,
	ruleRepo database.RuleRepository, reactionRepo database.ReactionRepository,
	handshake handshakeService, indieauth indieAuthService, discovery discoveryService,
	scheduler schedulerService) *Handler {
	return &Handler{
		friendRepo:    friendRepo,
		subRepo:       subRepo,
		postRepo:      postRepo,
		localPostRepo: localPostRepo,
		ruleRepo:      ruleRepo,
		reactionRepo:  reactionRepo,
		handshake:     handshake,
		indieauth:     indieauth,
		discovery:     discovery,
		generator:     feed.NewGenerator(),
		scheduler:     scheduler,
		startTime:     time.Now(),
	}
}

// protocolError writes a protocol failure the way peers expect it.
func protocolError(c *gin.Context, err error) {
	var reqErr *protocol.RequestError
	if errors.As(err, &reqErr) {
		c.JSON(reqErr.Status, gin.H{
			"code":    reqErr.Code,
			"message": reqErr.Message,
			"status":  reqErr.Status,
		})
		return
	}
	slog.Error("Protocol request failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "Could not respond to the request.",
		"status":  http.StatusInternalServerError,
	})
}

// ReceiveFriendRequest handles POST /friends/v1/friend-request. Requests
// from peers speaking an older protocol version are redirected into the
// IndieAuth flow when they carry an identity URL.
func (h *Handler) ReceiveFriendRequest(c *gin.Context) {
	if c.PostForm("version") != protocol.ProtocolVersion {
		me := c.PostForm("me")
		if me == "" {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    "unsupported_protocol_version",
				"message": "Incompatible protocol version.",
				"status":  http.StatusForbidden,
			})
			return
		}
		redirect, err := h.indieauth.BeginRedirect(c.Request.Context(), me)
		if err != nil {
			protocolError(c, err)
			return
		}
		c.Header("Location", redirect)
		c.JSON(http.StatusFound, gin.H{"redirect": redirect})
		return
	}

	requestID, err := h.handshake.HandleFriendRequest(protocol.IncomingRequest{
		URL:      c.PostForm("url"),
		Name:     c.PostForm("name"),
		IconURL:  c.PostForm("icon_url"),
		Key:      c.PostForm("key"),
		Message:  c.PostForm("message"),
		Codeword: c.PostForm("codeword"),
	})
	if err != nil {
		protocolError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": requestID})
}

// ReceiveAcceptFriendRequest handles POST /friends/v1/accept-friend-request,
// the callback finishing a handshake this site started.
func (h *Handler) ReceiveAcceptFriendRequest(c *gin.Context) {
	signature, err := h.handshake.HandleAcceptConfirmation(protocol.AcceptConfirmation{
		RequestID: c.PostForm("request"),
		Proof:     c.PostForm("proof"),
		Key:       c.PostForm("key"),
		Name:      c.PostForm("name"),
		IconURL:   c.PostForm("icon_url"),
	})
	if err != nil {
		protocolError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"signature": signature})
}

// IndieAuth handles GET /friends/v1/indieauth.
func (h *Handler) IndieAuth(c *gin.Context) {
	result, err := h.indieauth.Authorize(protocol.AuthorizeParams{
		State:               c.Query("state"),
		Code:                c.Query("code"),
		Scope:               c.Query("scope"),
		ClientID:            c.Query("client_id"),
		AccountRole:         c.Query("account_role"),
		Me:                  c.Query("me"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
	})
	if err != nil {
		protocolError(c, err)
		return
	}

	response := gin.H{"code": result.Code}
	if result.State != "" {
		response["state"] = result.State
		response["code_challenge_method"] = "S256"
	}
	c.JSON(http.StatusOK, response)
}

// ReceivePostDeleted handles POST /friends/v1/post-deleted.
func (h *Handler) ReceivePostDeleted(c *gin.Context) {
	deleted, err := h.handshake.HandlePostDeleted(c.PostForm("friend"), c.PostForm("auth"), c.PostForm("post_id"))
	if err != nil {
		protocolError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// GetFeed serves the local posts as RSS. A valid friend token in the
// ?friend= parameter unlocks private posts and the additional feed
// elements; challenge-bound tokens also need their verifier in ?auth=.
func (h *Handler) GetFeed(c *gin.Context) {
	friend, err := h.handshake.AuthenticateFeedToken(c.Query("friend"), c.Query("auth"))
	if err != nil {
		slog.Error("Feed token lookup failed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	authenticated := friend != nil

	statuses := []string{database.StatusPublish}
	if authenticated {
		statuses = append(statuses, database.StatusPrivate)
	}

	posts, err := h.localPostRepo.GetLocalPosts(50, statuses...)
	if err != nil {
		slog.Error("Database error", "operation", "get_local_posts", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	var reactions feed.ReactionLoader
	if authenticated {
		reactions = func(postID string) []database.Reaction {
			stored, err := h.reactionRepo.GetReactions(postID)
			if err != nil {
				slog.Warn("Failed to load reactions", "post", postID, "error", err)
				return nil
			}
			return stored
		}
	}

	output, err := h.generator.Run(posts, authenticated, reactions)
	if err != nil {
		slog.Error("Feed generation failed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.String(http.StatusOK, output)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	friendCount, err := h.friendRepo.GetFriendCount()
	if err != nil {
		slog.Error("Database error", "operation", "friend_count", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	postCount, err := h.postRepo.GetPostCount()
	if err != nil {
		slog.Error("Database error", "operation", "post_count", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"friends":      friendCount,
		"cached_posts": postCount,
	})
}
