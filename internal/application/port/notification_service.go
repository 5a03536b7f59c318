package port

// NotificationService pushes live updates to connected dashboard clients.
type NotificationService interface {
	NotifyAlert(transition AlertTransitionEvent)
	NotifyRun(summary RunSummaryEvent)
}
