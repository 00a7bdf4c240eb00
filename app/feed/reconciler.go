package feed

import (
	"fmt"
	"html"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"peerpress/app/database"
)

// Notifier is told about posts that appeared in an established feed.
type Notifier interface {
	NotifyNewPost(friend *database.Friend, post *database.Post)
}

// Reconciler merges fetched feed items into the cached posts of a friend.
type Reconciler struct {
	posts     database.PostRepository
	reactions database.ReactionRepository
	rules     database.RuleRepository
	friends   database.FriendRepository
	engine    *RuleEngine
	notifier  Notifier
	logger    *slog.Logger
}

func NewReconciler(posts database.PostRepository, reactions database.ReactionRepository,
	rules database.RuleRepository, friends database.FriendRepository, notifier Notifier) *Reconciler {
	return &Reconciler{
		posts:     posts,
		reactions: reactions,
		rules:     rules,
		friends:   friends,
		engine:    NewRuleEngine(),
		notifier:  notifier,
		logger:    slog.Default().With("component", "reconciler"),
	}
}

// Result summarizes one reconciliation pass.
type Result struct {
	New     int
	Updated int
	Dropped int
}

func (r *Result) String() string {
	return fmt.Sprintf("%d new, %d updated, %d dropped", r.New, r.Updated, r.Dropped)
}

// Run merges items into the post cache of friend. Items are matched against
// existing posts by remote post id first, then raw permalink, then the
// entity-normalized permalink. Unmatched items become new posts dated by
// their published time. Running the same items twice yields no new posts.
func (r *Reconciler) Run(friend *database.Friend, items []Item) (*Result, error) {
	identities, err := r.posts.GetPostIdentities(friend.ID)
	if err != nil {
		return nil, fmt.Errorf("load post identities: %w", err)
	}
	index := buildIdentityIndex(identities)

	rules, err := r.rules.GetRules(friend.ID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	result := &Result{}
	var newPosts []*database.Post

	for i := range items {
		item := &items[i]

		switch r.engine.Run(item, rules, friend.CatchAll) {
		case VerdictDelete:
			result.Dropped++
			continue
		case VerdictTrash:
			item.PostStatus = database.StatusTrash
		}

		if (item.Content == "" && item.Title == "") || item.Permalink == "" {
			result.Dropped++
			continue
		}

		postID, err := r.resolvePost(friend.ID, index, item)
		if err != nil {
			return nil, err
		}

		if postID != "" {
			if err := r.updatePost(friend.ID, postID, item); err != nil {
				r.logger.Warn("Failed to update post", "friend", friend.URL, "permalink", item.Permalink, "error", err)
				continue
			}
			result.Updated++
		} else {
			post, err := r.insertPost(friend.ID, item)
			if err != nil {
				r.logger.Warn("Failed to insert post", "friend", friend.URL, "permalink", item.Permalink, "error", err)
				continue
			}
			postID = post.ID
			index[item.Permalink] = postID
			newPosts = append(newPosts, post)
			result.New++
		}

		if len(item.Reactions) > 0 {
			if err := r.storeReactions(postID, item.Reactions); err != nil {
				r.logger.Warn("Failed to store reactions", "post", postID, "error", err)
			}
		}
	}

	if friend.NewFriend {
		// First fetch after becoming friends; backfilled posts are not news.
		friend.NewFriend = false
		if err := r.friends.UpdateFriend(friend); err != nil {
			return result, fmt.Errorf("clear new friend flag: %w", err)
		}
	} else if r.notifier != nil {
		for _, post := range newPosts {
			r.notifier.NotifyNewPost(friend, post)
		}
	}

	return result, nil
}

func buildIdentityIndex(identities []database.PostIdentity) map[string]string {
	index := make(map[string]string, len(identities)*2)
	for _, identity := range identities {
		if identity.RemotePostID != "" {
			index[identity.RemotePostID] = identity.ID
		}
		if identity.GUID != "" {
			index[identity.GUID] = identity.ID
			index[normalizePermalink(identity.GUID)] = identity.ID
		}
	}
	return index
}

// resolvePost finds the cached post an item corresponds to, or "" for a new
// one. The index covers the common cases; a database lookup by guid is the
// fallback for posts cached before the index keys stabilized.
func (r *Reconciler) resolvePost(friendID string, index map[string]string, item *Item) (string, error) {
	if item.RemotePostID != "" {
		if id, ok := index[item.RemotePostID]; ok {
			return id, nil
		}
	}
	if id, ok := index[item.Permalink]; ok {
		return id, nil
	}
	normalized := normalizePermalink(item.Permalink)
	if id, ok := index[normalized]; ok {
		return id, nil
	}

	post, err := r.posts.GetPostByGUID(friendID, item.Permalink, normalized)
	if err != nil {
		return "", fmt.Errorf("look up post by guid: %w", err)
	}
	if post != nil {
		return post.ID, nil
	}
	return "", nil
}

func (r *Reconciler) updatePost(friendID, postID string, item *Item) error {
	post := &database.Post{
		ID:           postID,
		FriendID:     friendID,
		GUID:         item.Permalink,
		RemotePostID: numericRemoteID(item.RemotePostID),
		Title:        item.Title,
		Content:      item.Content,
		Status:       postStatus(item),
		AuthorName:   item.Author(),
		Gravatar:     item.Gravatar,
		CommentCount: item.CommentCount,
		ModifiedAt:   item.UpdatedAt,
	}
	return r.posts.UpdatePost(post)
}

func (r *Reconciler) insertPost(friendID string, item *Item) (*database.Post, error) {
	post := &database.Post{
		ID:           uuid.NewString(),
		FriendID:     friendID,
		GUID:         item.Permalink,
		RemotePostID: numericRemoteID(item.RemotePostID),
		Title:        item.Title,
		Content:      item.Content,
		Status:       postStatus(item),
		PostFormat:   item.PostFormat,
		AuthorName:   item.Author(),
		Gravatar:     item.Gravatar,
		CommentCount: item.CommentCount,
		PublishedAt:  item.PublishedAt,
		ModifiedAt:   item.UpdatedAt,
		CreatedAt:    item.PublishedAt,
	}
	if err := r.posts.InsertPost(post); err != nil {
		return nil, err
	}
	return post, nil
}

func (r *Reconciler) storeReactions(postID string, summaries []ReactionSummary) error {
	reactions := make([]database.Reaction, 0, len(summaries))
	for _, summary := range summaries {
		reactions = append(reactions, database.Reaction{
			PostID:     postID,
			Slug:       summary.Slug,
			Count:      summary.Count,
			Usernames:  summary.Usernames,
			YouReacted: summary.YouReacted,
		})
	}
	return r.reactions.ReplaceReactions(postID, reactions)
}

func postStatus(item *Item) string {
	switch item.PostStatus {
	case database.StatusPrivate, database.StatusTrash:
		return item.PostStatus
	}
	return database.StatusPublish
}

// numericRemoteID keeps only remote ids that are actual post numbers; feeds
// that fall back to repeating the permalink carry no extra identity.
func numericRemoteID(remoteID string) string {
	if remoteID == "" {
		return ""
	}
	if _, err := strconv.ParseInt(remoteID, 10, 64); err != nil {
		return ""
	}
	return remoteID
}

// normalizePermalink collapses entity-encoded characters so that a permalink
// serialized as &#038; matches its plain form.
func normalizePermalink(permalink string) string {
	return html.UnescapeString(permalink)
}
