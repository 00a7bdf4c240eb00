package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"peerpress/app/database"
	"peerpress/app/feed"
)

func (h *Handler) ListFriends(c *gin.Context) {
	friends, err := h.friendRepo.GetFriendsByRoles(
		database.RoleFriend, database.RoleAcquaintance, database.RoleRestrictedFriend,
		database.RolePendingRequest, database.RoleFriendRequest, database.RoleSubscription,
	)
	if err != nil {
		slog.Error("Database error", "operation", "list_friends", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	responses := make([]friendResponse, 0, len(friends))
	for i := range friends {
		responses = append(responses, newFriendResponse(&friends[i]))
	}
	c.JSON(http.StatusOK, gin.H{"friends": responses})
}

// SendFriendRequest starts a handshake with another site.
func (h *Handler) SendFriendRequest(c *gin.Context) {
	var body sendFriendRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	friend, err := h.handshake.SendFriendRequest(c.Request.Context(), body.URL, body.Message)
	if err != nil {
		protocolError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newFriendResponse(friend))
}

func (h *Handler) GetFriend(c *gin.Context) {
	friend, _ := h.loadFriend(c)
	if friend == nil {
		return
	}

	c.JSON(http.StatusOK, newFriendResponse(friend))
}

// AcceptFriendRequest accepts a pending incoming friend request.
func (h *Handler) AcceptFriendRequest(c *gin.Context) {
	friend, _ := h.loadFriend(c)
	if friend == nil {
		return
	}

	if err := h.handshake.AcceptFriendRequest(c.Request.Context(), friend.ID); err != nil {
		protocolError(c, err)
		return
	}

	accepted, err := h.friendRepo.GetFriend(friend.ID)
	if err != nil || accepted == nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, newFriendResponse(accepted))
}

func (h *Handler) DeleteFriend(c *gin.Context) {
	friend, _ := h.loadFriend(c)
	if friend == nil {
		return
	}

	if err := h.friendRepo.DeleteFriend(friend.ID); err != nil {
		slog.Error("Database error", "operation", "delete_friend", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListFriendPosts(c *gin.Context) {
	friend, _ := h.loadFriend(c)
	if friend == nil {
		return
	}

	statuses := []string{database.StatusPublish, database.StatusPrivate}
	if c.Query("status") != "" {
		statuses = []string{c.Query("status")}
	}

	posts, err := h.postRepo.GetPostsForFriend(friend.ID, statuses...)
	if err != nil {
		slog.Error("Database error", "operation", "list_friend_posts", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	responses := make([]postResponse, 0, len(posts))
	for i := range posts {
		responses = append(responses, newPostResponse(&posts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"posts": responses})
}

func (h *Handler) ListSubscriptions(c *gin.Context) {
	friend, _ := h.loadFriend(c)
	if friend == nil {
		return
	}

	subscriptions, err := h.subRepo.GetSubscriptionsForFriend(friend.ID)
	if err != nil {
		slog.Error("Database error", "operation", "list_subscriptions", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	responses := make([]subscriptionResponse, 0, len(subscriptions))
	for i := range subscriptions {
		responses = append(responses, newSubscriptionResponse(&subscriptions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": responses})
}

func (h *Handler) AddSubscription(c *gin.Context) {
	friend, _ := h.loadFriend(c)
	if friend == nil {
		return
	}

	var body addSubscriptionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	active := true
	if body.Active != nil {
		active = *body.Active
	}
	subscription := &database.Subscription{
		FriendID:   friend.ID,
		URL:        body.URL,
		Title:      body.Title,
		Parser:     body.Parser,
		MimeType:   body.MimeType,
		PostFormat: body.PostFormat,
		Active:     active,
	}
	if subscription.Parser == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parser is required"})
		return
	}

	if err := h.subRepo.UpsertSubscription(subscription); err != nil {
		slog.Error("Database error", "operation", "add_subscription", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusCreated, newSubscriptionResponse(subscription))
}

// SetSubscriptionActive pauses or resumes fetching of one subscription.
func (h *Handler) SetSubscriptionActive(c *gin.Context) {
	var body setSubscriptionActiveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscription, err := h.subRepo.GetSubscription(c.Param("id"))
	if err != nil {
		slog.Error("Database error", "operation", "get_subscription", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if subscription == nil {
		c.Status(http.StatusNotFound)
		return
	}

	if err := h.subRepo.SetSubscriptionActive(subscription.ID, *body.Active); err != nil {
		slog.Error("Database error", "operation", "set_subscription_active", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": *body.Active})
}

func (h *Handler) DeleteSubscription(c *gin.Context) {
	if err := h.subRepo.DeleteSubscription(c.Param("id")); err != nil {
		slog.Error("Database error", "operation", "delete_subscription", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// SaveRules replaces the rule set of a friend. Malformed rules are dropped
// silently, mirroring how rules behave at evaluation time.
func (h *Handler) SaveRules(c *gin.Context) {
	friend, _ := h.loadFriend(c)
	if friend == nil {
		return
	}

	var body saveRulesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rules := make([]database.Rule, 0, len(body.Rules))
	for i, rule := range body.Rules {
		rules = append(rules, database.Rule{
			FriendID:    friend.ID,
			Position:    i,
			Field:       rule.Field,
			Regex:       rule.Regex,
			Action:      rule.Action,
			Replacement: rule.Replacement,
		})
	}
	rules = feed.ValidateRules(rules)

	if err := h.ruleRepo.ReplaceRules(friend.ID, rules); err != nil {
		slog.Error("Database error", "operation", "save_rules", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	friend.CatchAll = feed.ValidateCatchAll(body.CatchAll)
	if err := h.friendRepo.UpdateFriend(friend); err != nil {
		slog.Error("Database error", "operation", "save_catch_all", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": len(rules), "catch_all": friend.CatchAll})
}

func (h *Handler) GetRules(c *gin.Context) {
	friend, _ := h.loadFriend(c)
	if friend == nil {
		return
	}

	rules, err := h.ruleRepo.GetRules(friend.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_rules", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	responses := make([]ruleBody, 0, len(rules))
	for _, rule := range rules {
		responses = append(responses, ruleBody{
			Field:       rule.Field,
			Regex:       rule.Regex,
			Action:      rule.Action,
			Replacement: rule.Replacement,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rules": responses, "catch_all": friend.CatchAll})
}

// RefreshFriend schedules an immediate fetch of the friend's feeds.
func (h *Handler) RefreshFriend(c *gin.Context) {
	friend, _ := h.loadFriend(c)
	if friend == nil {
		return
	}

	h.scheduler.RefreshFriend(friend.ID)
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

// Discover runs feed discovery against a URL without subscribing.
func (h *Handler) Discover(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url parameter is required"})
		return
	}

	feeds, err := h.discovery.DiscoverFeeds(c.Request.Context(), url)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"feeds": feeds})
}

func (h *Handler) CreateLocalPost(c *gin.Context) {
	var body createLocalPostBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := body.Status
	switch status {
	case "":
		status = database.StatusPublish
	case database.StatusPublish, database.StatusPrivate:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	post := &database.LocalPost{
		ID:          uuid.NewString(),
		Title:       body.Title,
		Content:     body.Content,
		Status:      status,
		PublishedAt: time.Now().UTC(),
	}
	if err := h.localPostRepo.CreateLocalPost(post); err != nil {
		slog.Error("Database error", "operation", "create_local_post", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": post.ID})
}

// DeleteLocalPost removes a local post and tells confirmed friends to drop
// their cached copy.
func (h *Handler) DeleteLocalPost(c *gin.Context) {
	id := c.Param("id")
	post, err := h.localPostRepo.GetLocalPost(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_local_post", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if post == nil {
		c.Status(http.StatusNotFound)
		return
	}

	if err := h.localPostRepo.DeleteLocalPost(id); err != nil {
		slog.Error("Database error", "operation", "delete_local_post", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	// Detached so the notifications outlive the request.
	go h.handshake.PropagatePostDeletion(context.WithoutCancel(c.Request.Context()), id)

	c.Status(http.StatusNoContent)
}

// loadFriend resolves the :id path parameter, writing the error response
// itself when the friend cannot be loaded.
func (h *Handler) loadFriend(c *gin.Context) (*database.Friend, error) {
	friend, err := h.friendRepo.GetFriend(c.Param("id"))
	if err != nil {
		slog.Error("Database error", "operation", "get_friend", "error", err)
		c.Status(http.StatusInternalServerError)
		return nil, err
	}
	if friend == nil {
		c.Status(http.StatusNotFound)
		return nil, nil
	}
	return friend, nil
}
