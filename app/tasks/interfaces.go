package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API server to manage background
// processing of subscriptions.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	RefreshFriend(friendID string)
}
