package database

import (
	"time"
)

// Friend roles, in descending order of trust. A friend row represents a
// remote installation this site has a relationship with.
const (
	RoleFriend           = "friend"
	RoleAcquaintance     = "acquaintance"
	RoleRestrictedFriend = "restricted_friend"
	RolePendingRequest   = "pending_friend_request" // we sent a request, awaiting their acceptance
	RoleFriendRequest    = "friend_request"         // they sent a request, awaiting our acceptance
	RoleSubscription     = "subscription"
)

// FeedBearingRoles are the roles whose subscriptions get fetched.
var FeedBearingRoles = []string{RoleFriend, RoleRestrictedFriend, RolePendingRequest, RoleSubscription}

// Post status values for cached friend posts.
const (
	StatusPublish = "publish"
	StatusPrivate = "private"
	StatusTrash   = "trash"
)

// Friend represents a remote peer installation.
type Friend struct {
	ID          string
	URL         string
	DisplayName string
	IconURL     string
	Role        string

	// Confirmed credential pair. OutToken is presented to the friend when
	// fetching their private feed; InToken is what they present to us.
	OutToken string
	InToken  string

	// Transient handshake bookkeeping. The receiving side of a request keeps
	// the raw correlation id and the requester's token half; the sending side
	// keeps the hashed correlation id and its own token half.
	RequestID      string
	RequestHash    string
	FutureInToken  string
	FutureOutToken string
	RequestMessage string

	CatchAll  string
	NewFriend bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Confirmed reports whether the relationship has a full credential pair.
// Derived from the tokens rather than the role so that a role flag that got
// out of sync with the handshake cannot grant feed access.
func (f *Friend) Confirmed() bool {
	return f.OutToken != "" && f.InToken != ""
}

// Subscription is a remote feed endpoint belonging to a friend.
type Subscription struct {
	ID         string
	FriendID   string
	URL        string
	Title      string
	Parser     string
	MimeType   string
	PostFormat string
	Active     bool
	LastLog    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Post is the durable projection of a fetched feed item.
type Post struct {
	ID           string
	FriendID     string
	GUID         string
	RemotePostID string
	Title        string
	Content      string
	Status       string
	PostFormat   string
	AuthorName   string
	Gravatar     string
	CommentCount int
	PublishedAt  time.Time
	ModifiedAt   *time.Time
	CreatedAt    time.Time
}

// PostIdentity is the slice of a post needed to build the dedup index.
type PostIdentity struct {
	ID           string
	GUID         string
	RemotePostID string
}

// Reaction is an imported reaction summary for a cached post.
type Reaction struct {
	PostID     string
	Slug       string
	Count      int
	Usernames  string
	YouReacted bool
}

// Fields a rule can match against.
const (
	RuleFieldTitle     = "title"
	RuleFieldContent   = "content"
	RuleFieldPermalink = "permalink"
	RuleFieldAuthor    = "author"
)

// Rule actions. Accept, trash and delete terminate the evaluation; replace
// rewrites the matched field and continues.
const (
	RuleActionAccept  = "accept"
	RuleActionTrash   = "trash"
	RuleActionDelete  = "delete"
	RuleActionReplace = "replace"
)

// Rule is a single content transformation rule, evaluated in position order.
type Rule struct {
	FriendID    string
	Position    int
	Field       string
	Regex       string
	Action      string
	Replacement string
}

// Token is a short-lived credential issued during the IndieAuth flow.
type Token struct {
	Token         string
	FriendID      string
	ValidUntil    time.Time
	CodeChallenge string
	CreatedAt     time.Time
}

// LocalPost is a post authored on this installation, served via the feed.
type LocalPost struct {
	ID          string
	Title       string
	Content     string
	Status      string
	PublishedAt time.Time
	UpdatedAt   time.Time
}
