package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"peerpress/app/cfg"
	"peerpress/app/database"
	"peerpress/app/feed"
)

// MessageMaxLength caps the free-form message on incoming friend requests.
const MessageMaxLength = 2000

// Handshake drives both sides of the friend request protocol.
//
// The requester generates token half A, sends it with the request and keeps
// it hashed away together with the returned correlation id. The accepter
// later generates half B and calls back with a proof built from A and the
// correlation id. Both sides then hold the pair: the requester presents B
// when fetching, the accepter presents A.
type Handshake struct {
	friends       database.FriendRepository
	subscriptions database.SubscriptionRepository
	posts         database.PostRepository
	tokens        database.TokenRepository
	discovery     *feed.Discovery
	client        *Client
	onNewFriend   func(friendID string)
	logger        *slog.Logger
}

func NewHandshake(friends database.FriendRepository, subscriptions database.SubscriptionRepository,
	posts database.PostRepository, tokens database.TokenRepository,
	discovery *feed.Discovery, client *Client) *Handshake {
	return &Handshake{
		friends:       friends,
		subscriptions: subscriptions,
		posts:         posts,
		tokens:        tokens,
		discovery:     discovery,
		client:        client,
		logger:        slog.Default().With("component", "handshake"),
	}
}

// OnNewFriend registers a callback fired when a relationship is confirmed,
// typically to schedule the first feed fetch.
func (h *Handshake) OnNewFriend(fn func(friendID string)) {
	h.onNewFriend = fn
}

// SendFriendRequest starts a handshake with the site at siteURL. The created
// friend carries the pending role until the peer accepts. When the peer has
// already sent us a request, it is accepted instead.
func (h *Handshake) SendFriendRequest(ctx context.Context, siteURL, message string) (*database.Friend, error) {
	siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if !validSiteURL(siteURL) || strings.EqualFold(siteURL, cfg.Get().BaseUrl) {
		return nil, ErrInvalidSite
	}

	friend, err := h.friends.GetFriendByURL(siteURL)
	if err != nil {
		return nil, err
	}
	if friend != nil {
		if friend.Confirmed() {
			return friend, nil
		}
		if friend.Role == database.RoleFriendRequest {
			// They asked first; accepting resolves both requests.
			if err := h.AcceptFriendRequest(ctx, friend.ID); err != nil {
				return nil, err
			}
			return h.friends.GetFriend(friend.ID)
		}
	}

	feeds, err := h.discovery.DiscoverFeeds(ctx, siteURL)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", siteURL, err)
	}
	restURL := feed.RestURL(feeds)

	if friend == nil {
		friend = &database.Friend{
			ID:          uuid.NewString(),
			URL:         siteURL,
			DisplayName: siteURL,
			Role:        database.RoleSubscription,
		}
		if err := h.friends.CreateFriend(friend); err != nil {
			return nil, err
		}
	}

	if err := h.subscribeDiscovered(friend, feeds); err != nil {
		return nil, err
	}

	if restURL == "" {
		// Not a peer installation; the best we can do is subscribe.
		friend.Role = database.RoleSubscription
		if err := h.friends.UpdateFriend(friend); err != nil {
			return nil, err
		}
		return friend, nil
	}

	key := GenerateToken(TokenLength)
	c := cfg.Get()
	requestID, err := h.client.SendFriendRequest(ctx, restURL, c.BaseUrl, c.SiteName, c.Gravatar, key, message, c.Codeword)
	if err != nil {
		friend.Role = database.RoleSubscription
		if updateErr := h.friends.UpdateFriend(friend); updateErr != nil {
			h.logger.Warn("Failed to downgrade friend after request failure", "url", siteURL, "error", updateErr)
		}
		return nil, fmt.Errorf("send friend request to %s: %w", siteURL, err)
	}

	friend.Role = database.RolePendingRequest
	friend.FutureInToken = key
	friend.RequestHash = RequestHash(requestID)
	if err := h.friends.UpdateFriend(friend); err != nil {
		return nil, err
	}

	h.logger.Info("Friend request sent", "url", siteURL)
	return friend, nil
}

// IncomingRequest carries the parameters of a received friend request.
type IncomingRequest struct {
	URL      string
	Name     string
	IconURL  string
	Key      string
	Message  string
	Codeword string
}

// HandleFriendRequest processes a friend request received from a peer and
// returns the correlation id the peer needs for the acceptance call.
func (h *Handshake) HandleFriendRequest(in IncomingRequest) (string, error) {
	c := cfg.Get()
	if c.RequireCodeword && in.Codeword != c.Codeword {
		return "", ErrInvalidCodeword
	}

	siteURL := strings.TrimRight(strings.TrimSpace(in.URL), "/")
	if !validSiteURL(siteURL) || strings.EqualFold(siteURL, c.BaseUrl) {
		return "", ErrInvalidSite
	}
	if in.Key == "" {
		return "", ErrInvalidKey
	}

	friend, err := h.friends.GetFriendByURL(siteURL)
	if err != nil {
		return "", err
	}
	if friend == nil {
		friend = &database.Friend{
			ID:  uuid.NewString(),
			URL: siteURL,
		}
		if err := h.friends.CreateFriend(friend); err != nil {
			return "", err
		}
	}

	message := in.Message
	if len(message) > MessageMaxLength {
		message = message[:MessageMaxLength]
	}

	friend.Role = database.RoleFriendRequest
	if in.Name != "" {
		friend.DisplayName = in.Name
	} else if friend.DisplayName == "" {
		friend.DisplayName = siteURL
	}
	friend.IconURL = in.IconURL
	friend.FutureOutToken = in.Key
	friend.RequestMessage = message
	friend.RequestID = GenerateToken(TokenLength)
	if err := h.friends.UpdateFriend(friend); err != nil {
		return "", err
	}

	h.logger.Info("Friend request received", "url", siteURL)
	return friend.RequestID, nil
}

// AcceptFriendRequest accepts a received friend request: it generates this
// side's token half, proves receipt of the peer's half and verifies the
// returned signature before committing the relationship.
func (h *Handshake) AcceptFriendRequest(ctx context.Context, friendID string) error {
	friend, err := h.friends.GetFriend(friendID)
	if err != nil {
		return err
	}
	if friend == nil || friend.Role != database.RoleFriendRequest ||
		friend.RequestID == "" || friend.FutureOutToken == "" {
		return ErrNotPending
	}

	restURL, err := h.restURLForFriend(ctx, friend)
	if err != nil {
		return err
	}

	outToken := friend.FutureOutToken
	inToken := GenerateToken(TokenLength)
	proof := Proof(outToken, friend.RequestID)

	c := cfg.Get()
	signature, err := h.client.AcceptFriendRequest(ctx, restURL, friend.RequestID, proof, inToken, c.SiteName, c.Gravatar)
	if err != nil {
		return fmt.Errorf("notify %s of acceptance: %w", friend.URL, err)
	}
	if signature != Signature(inToken, outToken) {
		return ErrInvalidProof
	}

	friend.OutToken = outToken
	friend.InToken = inToken
	friend.Role = database.RoleFriend
	friend.RequestID = ""
	friend.FutureOutToken = ""
	friend.RequestMessage = ""
	friend.NewFriend = true
	if err := h.friends.UpdateFriend(friend); err != nil {
		return err
	}

	h.logger.Info("Friend request accepted", "url", friend.URL)
	if h.onNewFriend != nil {
		h.onNewFriend(friend.ID)
	}
	return nil
}

// AcceptConfirmation carries the parameters of a received acceptance call.
type AcceptConfirmation struct {
	RequestID string
	Proof     string
	Key       string
	Name      string
	IconURL   string
}

// HandleAcceptConfirmation finishes the handshake on the requesting side.
// The proof must have been built from the token half sent with the original
// request; the stored half is single use. Returns the signature over both
// token halves for the accepter to verify.
func (h *Handshake) HandleAcceptConfirmation(in AcceptConfirmation) (string, error) {
	if in.RequestID == "" {
		return "", ErrUnknownRequest
	}
	friend, err := h.friends.GetFriendByRequestHash(RequestHash(in.RequestID))
	if err != nil {
		return "", err
	}
	if friend == nil || friend.FutureInToken == "" {
		return "", ErrUnknownRequest
	}
	if in.Proof == "" || Proof(friend.FutureInToken, in.RequestID) != in.Proof {
		return "", ErrInvalidProof
	}
	if friend.Role != database.RolePendingRequest {
		return "", ErrNotPending
	}
	if in.Key == "" {
		return "", ErrInvalidKey
	}

	friend.OutToken = in.Key
	friend.InToken = friend.FutureInToken
	friend.Role = database.RoleFriend
	friend.RequestHash = ""
	friend.FutureInToken = ""
	friend.NewFriend = true
	if in.Name != "" {
		friend.DisplayName = in.Name
	}
	if in.IconURL != "" {
		friend.IconURL = in.IconURL
	}
	if err := h.friends.UpdateFriend(friend); err != nil {
		return "", err
	}

	h.logger.Info("Friend request was accepted remotely", "url", friend.URL)
	if h.onNewFriend != nil {
		h.onNewFriend(friend.ID)
	}
	return Signature(friend.OutToken, friend.InToken), nil
}

// HandlePostDeleted removes the cached copy of a post the friend deleted.
// The caller authenticates with the token we issued to them; auth carries
// the code verifier when the token is challenge-bound.
func (h *Handshake) HandlePostDeleted(token, auth, remotePostID string) (bool, error) {
	friend, err := h.AuthenticateFeedToken(token, auth)
	if err != nil {
		return false, err
	}
	if friend == nil {
		return false, ErrRequestFailed
	}

	post, err := h.posts.GetPostByRemoteID(friend.ID, remotePostID)
	if err != nil {
		return false, err
	}
	if post == nil {
		return false, nil
	}
	if err := h.posts.DeletePost(post.ID); err != nil {
		return false, err
	}
	return true, nil
}

// PropagatePostDeletion notifies every confirmed friend that a local post
// was deleted. Failures are logged per friend, not propagated.
func (h *Handshake) PropagatePostDeletion(ctx context.Context, postID string) {
	friends, err := h.friends.GetFriendsByRoles(database.RoleFriend, database.RoleAcquaintance, database.RoleRestrictedFriend)
	if err != nil {
		h.logger.Error("Failed to load friends for deletion notice", "error", err)
		return
	}

	for i := range friends {
		friend := &friends[i]
		if !friend.Confirmed() {
			continue
		}
		restURL, err := h.restURLForFriend(ctx, friend)
		if err != nil {
			h.logger.Warn("No protocol endpoint for friend", "url", friend.URL, "error", err)
			continue
		}
		if _, err := h.client.NotifyPostDeleted(ctx, restURL, postID, friend.OutToken); err != nil {
			h.logger.Warn("Failed to notify friend of deletion", "url", friend.URL, "error", err)
		}
	}
}

// AuthenticateFeedToken resolves the friend presenting a feed access token.
// Both the durable in token and a valid short-lived token are accepted. A
// short-lived token is bound to a code challenge at issue time, so the
// caller must also present the matching verifier in auth; a missing or
// mismatched verifier is treated like an unknown token. Returns nil without
// error when the token matches nothing.
func (h *Handshake) AuthenticateFeedToken(token, auth string) (*database.Friend, error) {
	if token == "" {
		return nil, nil
	}
	friend, err := h.friends.GetFriendByInToken(token)
	if err != nil {
		return nil, err
	}
	if friend != nil {
		return friend, nil
	}

	issued, err := h.tokens.GetToken(token)
	if err != nil {
		return nil, err
	}
	if issued == nil || issued.FriendID == "" {
		return nil, nil
	}
	if issued.ValidUntil.Before(time.Now()) {
		if err := h.tokens.DeleteToken(token); err != nil {
			h.logger.Warn("Failed to delete expired token", "error", err)
		}
		return nil, nil
	}
	if !VerifyChallenge(issued.CodeChallenge, auth) {
		return nil, nil
	}
	return h.friends.GetFriend(issued.FriendID)
}

// restURLForFriend returns the friend's protocol endpoint, preferring the
// one captured during discovery over a fresh lookup.
func (h *Handshake) restURLForFriend(ctx context.Context, friend *database.Friend) (string, error) {
	subscriptions, err := h.subscriptions.GetSubscriptionsForFriend(friend.ID)
	if err != nil {
		return "", err
	}
	for _, subscription := range subscriptions {
		if subscription.Parser == feed.ParserFriends {
			return subscription.URL, nil
		}
	}
	return h.discovery.DiscoverRestURL(ctx, friend.URL)
}

// subscribeDiscovered stores the discovered feeds of a friend. The protocol
// endpoint is kept as an inactive subscription so later calls find it
// without a new discovery pass.
func (h *Handshake) subscribeDiscovered(friend *database.Friend, feeds map[string]feed.FeedInfo) error {
	for feedURL, info := range feeds {
		if info.Parser == "" {
			continue
		}
		subscription := &database.Subscription{
			FriendID:   friend.ID,
			URL:        feedURL,
			Title:      info.Title,
			Parser:     info.Parser,
			MimeType:   info.Type,
			PostFormat: info.PostFormat,
			Active:     info.Parser != feed.ParserFriends && info.Rel != "me",
		}
		if err := h.subscriptions.UpsertSubscription(subscription); err != nil {
			return err
		}
	}
	return nil
}

func validSiteURL(siteURL string) bool {
	parsed, err := url.Parse(siteURL)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
