package tasks

import (
	"context"
	"fmt"

	"peerpress/app/database"
	"peerpress/app/feed"
)

// RefreshFriendTask processes every subscription of one friend right away.
// Scheduled when a relationship is confirmed so the first posts show up
// without waiting for the next scheduler pass.
type RefreshFriendTask struct {
	Task
	FriendID   string
	friendRepo database.FriendRepository
	subRepo    database.SubscriptionRepository
	registry   *feed.Registry
	reconciler *feed.Reconciler
}

func NewRefreshFriendTask(friendID string, friendRepo database.FriendRepository,
	subRepo database.SubscriptionRepository, registry *feed.Registry, reconciler *feed.Reconciler) *RefreshFriendTask {
	return &RefreshFriendTask{
		Task:       NewTask(TaskTypeRefreshFriend, friendID),
		FriendID:   friendID,
		friendRepo: friendRepo,
		subRepo:    subRepo,
		registry:   registry,
		reconciler: reconciler,
	}
}

func (t *RefreshFriendTask) Execute(ctx context.Context) error {
	subscriptions, err := t.subRepo.GetSubscriptionsForFriend(t.FriendID)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}

	for _, subscription := range subscriptions {
		if !subscription.Active || subscription.Parser == feed.ParserFriends {
			continue
		}
		task := NewProcessSubscriptionTask(subscription, t.friendRepo, t.subRepo, t.registry, t.reconciler)
		if err := task.Execute(ctx); err != nil {
			return err
		}
	}
	return nil
}
