package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"peerpress/app/database"
	"peerpress/app/feed"
)

// ProcessSubscriptionTask fetches one subscribed feed and reconciles its
// items into the post cache of the owning friend.
type ProcessSubscriptionTask struct {
	Task
	Subscription database.Subscription
	friendRepo   database.FriendRepository
	subRepo      database.SubscriptionRepository
	registry     *feed.Registry
	reconciler   *feed.Reconciler
}

func NewProcessSubscriptionTask(subscription database.Subscription, friendRepo database.FriendRepository,
	subRepo database.SubscriptionRepository, registry *feed.Registry, reconciler *feed.Reconciler) *ProcessSubscriptionTask {
	return &ProcessSubscriptionTask{
		Task:         NewTask(TaskTypeProcessSubscription, subscription.URL),
		Subscription: subscription,
		friendRepo:   friendRepo,
		subRepo:      subRepo,
		registry:     registry,
		reconciler:   reconciler,
	}
}

func (t *ProcessSubscriptionTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.Subscription.Active || t.Subscription.Parser == feed.ParserFriends {
		return nil
	}

	friend, err := t.friendRepo.GetFriend(t.Subscription.FriendID)
	if err != nil {
		return fmt.Errorf("failed to load friend: %w", err)
	}
	if friend == nil {
		slog.Warn("Subscription without friend, skipping", "url", t.Subscription.URL)
		return nil
	}

	parser := t.registry.Get(t.Subscription.Parser)
	if parser == nil {
		t.logResult(fmt.Sprintf("error: unknown parser %q", t.Subscription.Parser))
		return fmt.Errorf("unknown parser %q for %s", t.Subscription.Parser, t.Subscription.URL)
	}

	items, err := parser.FetchFeed(ctx, t.feedURL(friend))
	if err != nil {
		t.logResult("error: " + err.Error())
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	result, err := t.reconciler.Run(friend, items)
	if err != nil {
		t.logResult("error: " + err.Error())
		return fmt.Errorf("failed to reconcile feed: %w", err)
	}

	t.logResult(result.String())
	slog.Debug("Subscription processed", "url", t.Subscription.URL, "result", result.String(), "duration", t.GetDuration().String())
	return nil
}

// feedURL appends the out token for confirmed friends so that the peer
// serves the private feed with its additional elements.
func (t *ProcessSubscriptionTask) feedURL(friend *database.Friend) string {
	if !friend.Confirmed() {
		return t.Subscription.URL
	}
	parsed, err := url.Parse(t.Subscription.URL)
	if err != nil {
		return t.Subscription.URL
	}
	query := parsed.Query()
	query.Set("friend", friend.OutToken)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func (t *ProcessSubscriptionTask) logResult(line string) {
	if err := t.subRepo.UpdateLastLog(t.Subscription.ID, line); err != nil {
		slog.Warn("Failed to update subscription log", "url", t.Subscription.URL, "error", err)
	}
}
