package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"peerpress/app/database"
	"peerpress/app/feed"
)

const extractBatchSize = 10

// ExtractContentTask backfills the body of posts whose feed only carried an
// excerpt or nothing at all, by fetching the permalink and extracting the
// readable article.
type ExtractContentTask struct {
	Task
	FriendID   string
	httpClient *http.Client
	extractor  *feed.ContentExtractor
	postRepo   database.PostRepository
	userAgent  string
}

func NewExtractContentTask(friendID string, httpClient *http.Client, extractor *feed.ContentExtractor,
	postRepo database.PostRepository, userAgent string) *ExtractContentTask {
	return &ExtractContentTask{
		Task:       NewTask(TaskTypeExtractContent, friendID),
		FriendID:   friendID,
		httpClient: httpClient,
		extractor:  extractor,
		postRepo:   postRepo,
		userAgent:  userAgent,
	}
}

func (t *ExtractContentTask) Execute(ctx context.Context) error {
	posts, err := t.postRepo.GetPostsWithoutContent(t.FriendID, extractBatchSize)
	if err != nil {
		return fmt.Errorf("failed to load posts without content: %w", err)
	}

	for _, post := range posts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := t.fetchPage(ctx, post.GUID)
		if err != nil {
			slog.Warn("Failed to fetch page for extraction", "permalink", post.GUID, "error", err)
			continue
		}

		content, err := t.extractor.Run(data)
		if err != nil {
			slog.Warn("Failed to extract content", "permalink", post.GUID, "error", err)
			continue
		}

		if err := t.postRepo.UpdatePostContent(post.ID, content); err != nil {
			return fmt.Errorf("failed to store extracted content: %w", err)
		}
	}
	return nil
}

func (t *ExtractContentTask) fetchPage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
}
