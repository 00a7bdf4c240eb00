package api

import (
	"context"

	"peerpress/app/database"
	"peerpress/app/feed"
	"peerpress/app/protocol"
)

// The handler depends on behavior, not concrete services, so tests can
// substitute fakes.

type handshakeService interface {
	SendFriendRequest(ctx context.Context, siteURL, message string) (*database.Friend, error)
	HandleFriendRequest(in protocol.IncomingRequest) (string, error)
	AcceptFriendRequest(ctx context.Context, friendID string) error
	HandleAcceptConfirmation(in protocol.AcceptConfirmation) (string, error)
	HandlePostDeleted(token, auth, remotePostID string) (bool, error)
	PropagatePostDeletion(ctx context.Context, postID string)
	AuthenticateFeedToken(token, auth string) (*database.Friend, error)
}

type indieAuthService interface {
	BeginRedirect(ctx context.Context, me string) (string, error)
	Authorize(params protocol.AuthorizeParams) (*protocol.AuthorizeResult, error)
}

type discoveryService interface {
	DiscoverFeeds(ctx context.Context, url string) (map[string]feed.FeedInfo, error)
}

type generatorService interface {
	Run(posts []database.LocalPost, authenticated bool, reactions feed.ReactionLoader) (string, error)
}

type schedulerService interface {
	RefreshFriend(friendID string)
}
