package sync

// Notifier receives sync progress. Implementations must not block; the
// dashboard handler queues messages for its broadcast loop.
type Notifier interface {
	// SyncStateChanged is called when an entity enters or leaves a run.
	SyncStateChanged(status Status)

	// SyncCompleted is called with the result of each finished run.
	SyncCompleted(result *Result)
}

// NotifierFuncs adapts plain functions to Notifier. Nil fields are skipped.
type NotifierFuncs struct {
	OnState  func(Status)
	OnResult func(*Result)
}

// SyncStateChanged implements Notifier.
func (n NotifierFuncs) SyncStateChanged(status Status) {
	if n.OnState != nil {
		n.OnState(status)
	}
}

// SyncCompleted implements Notifier.
func (n NotifierFuncs) SyncCompleted(result *Result) {
	if n.OnResult != nil {
		n.OnResult(result)
	}
}
