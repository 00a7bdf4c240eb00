package feed

import (
	"log/slog"

	"peerpress/app/database"
)

// LogNotifier announces new posts on the application log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default().With("component", "notifier")}
}

func (n *LogNotifier) NotifyNewPost(friend *database.Friend, post *database.Post) {
	n.logger.Info("New post", "friend", friend.DisplayName, "url", friend.URL, "title", post.Title, "permalink", post.GUID)
}
