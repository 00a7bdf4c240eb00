package database

// FriendRepository handles persistence for friend relationships.
type FriendRepository interface {
	CreateFriend(f *Friend) error
	GetFriend(id string) (*Friend, error)
	GetFriendByURL(url string) (*Friend, error)
	GetFriendByInToken(token string) (*Friend, error)
	GetFriendByRequestHash(hash string) (*Friend, error)
	GetFriendsByRoles(roles ...string) ([]Friend, error)
	UpdateFriend(f *Friend) error
	DeleteFriend(id string) error
	GetFriendCount() (int, error)
}

// SubscriptionRepository handles persistence for remote feed endpoints.
type SubscriptionRepository interface {
	UpsertSubscription(s *Subscription) error
	GetSubscription(id string) (*Subscription, error)
	GetSubscriptionsForFriend(friendID string) ([]Subscription, error)
	GetActiveSubscriptions(roles ...string) ([]Subscription, error)
	SetSubscriptionActive(id string, active bool) error
	UpdateLastLog(id string, line string) error
	DeleteSubscription(id string) error
}

// PostRepository handles persistence for cached friend posts.
type PostRepository interface {
	GetPostIdentities(friendID string) ([]PostIdentity, error)
	GetPostByGUID(friendID string, guids ...string) (*Post, error)
	GetPostByRemoteID(friendID, remotePostID string) (*Post, error)
	InsertPost(p *Post) error
	UpdatePost(p *Post) error
	DeletePost(id string) error
	GetPostsForFriend(friendID string, statuses ...string) ([]Post, error)
	GetPostsWithoutContent(friendID string, limit int) ([]Post, error)
	UpdatePostContent(id string, content string) error
	GetPostCount() (int, error)
}

// ReactionRepository handles imported reaction summaries.
type ReactionRepository interface {
	ReplaceReactions(postID string, reactions []Reaction) error
	GetReactions(postID string) ([]Reaction, error)
}

// RuleRepository handles the per-friend feed rules. Rules are replaced
// wholesale on save.
type RuleRepository interface {
	ReplaceRules(friendID string, rules []Rule) error
	GetRules(friendID string) ([]Rule, error)
}

// TokenRepository handles short-lived authorization tokens.
type TokenRepository interface {
	SaveToken(t *Token) error
	GetToken(token string) (*Token, error)
	DeleteToken(token string) error
	DeleteExpiredTokens() error
}

// LocalPostRepository handles posts authored on this installation.
type LocalPostRepository interface {
	CreateLocalPost(p *LocalPost) error
	GetLocalPost(id string) (*LocalPost, error)
	GetLocalPosts(limit int, statuses ...string) ([]LocalPost, error)
	DeleteLocalPost(id string) error
}
