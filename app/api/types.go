package api

import (
	"time"

	"peerpress/app/database"
)

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	friendRepo    database.FriendRepository
	subRepo       database.SubscriptionRepository
	postRepo      database.PostRepository
	localPostRepo database.LocalPostRepository
	ruleRepo      database.RuleRepository
	reactionRepo  database.ReactionRepository
	handshake     handshakeService
	indieauth     indieAuthService
	discovery     discoveryService
	generator     generatorService
	scheduler     schedulerService
	startTime     time.Time
}

type sendFriendRequestBody struct {
	URL     string `json:"url" binding:"required"`
	Message string `json:"message"`
}

type addSubscriptionBody struct {
	URL        string `json:"url" binding:"required"`
	Title      string `json:"title"`
	Parser     string `json:"parser"`
	MimeType   string `json:"mime_type"`
	PostFormat string `json:"post_format"`
	Active     *bool  `json:"active"`
}

type setSubscriptionActiveBody struct {
	Active *bool `json:"active" binding:"required"`
}

type saveRulesBody struct {
	CatchAll string     `json:"catch_all"`
	Rules    []ruleBody `json:"rules"`
}

type ruleBody struct {
	Field       string `json:"field"`
	Regex       string `json:"regex"`
	Action      string `json:"action"`
	Replacement string `json:"replacement"`
}

type createLocalPostBody struct {
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
	Status  string `json:"status"`
}

type friendResponse struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	DisplayName    string `json:"display_name"`
	IconURL        string `json:"icon_url,omitempty"`
	Role           string `json:"role"`
	Confirmed      bool   `json:"confirmed"`
	RequestMessage string `json:"request_message,omitempty"`
	CatchAll       string `json:"catch_all,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func newFriendResponse(f *database.Friend) friendResponse {
	return friendResponse{
		ID:             f.ID,
		URL:            f.URL,
		DisplayName:    f.DisplayName,
		IconURL:        f.IconURL,
		Role:           f.Role,
		Confirmed:      f.Confirmed(),
		RequestMessage: f.RequestMessage,
		CatchAll:       f.CatchAll,
		CreatedAt:      f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type subscriptionResponse struct {
	ID         string `json:"id"`
	FriendID   string `json:"friend_id"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Parser     string `json:"parser"`
	MimeType   string `json:"mime_type,omitempty"`
	PostFormat string `json:"post_format,omitempty"`
	Active     bool   `json:"active"`
	LastLog    string `json:"last_log,omitempty"`
}

func newSubscriptionResponse(s *database.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:         s.ID,
		FriendID:   s.FriendID,
		URL:        s.URL,
		Title:      s.Title,
		Parser:     s.Parser,
		MimeType:   s.MimeType,
		PostFormat: s.PostFormat,
		Active:     s.Active,
		LastLog:    s.LastLog,
	}
}

type postResponse struct {
	ID           string `json:"id"`
	GUID         string `json:"guid"`
	Title        string `json:"title,omitempty"`
	Content      string `json:"content,omitempty"`
	Status       string `json:"status"`
	PostFormat   string `json:"post_format,omitempty"`
	AuthorName   string `json:"author,omitempty"`
	CommentCount int    `json:"comment_count,omitempty"`
	PublishedAt  string `json:"published_at"`
}

func newPostResponse(p *database.Post) postResponse {
	return postResponse{
		ID:           p.ID,
		GUID:         p.GUID,
		Title:        p.Title,
		Content:      p.Content,
		Status:       p.Status,
		PostFormat:   p.PostFormat,
		AuthorName:   p.AuthorName,
		CommentCount: p.CommentCount,
		PublishedAt:  p.PublishedAt.UTC().Format(time.RFC3339),
	}
}
