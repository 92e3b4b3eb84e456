package service

// SyncState classifies how the last job for a workspace ended.
type SyncState int

const (
	SyncStateUnknown SyncState = iota
	SyncStateSuccess
	SyncStateConflicted
	SyncStateSyncFailed
	SyncStatePushFailed
	SyncStateInternalError
)

func (s SyncState) String() string {
	switch s {
	case SyncStateSuccess:
		return "success"
	case SyncStateConflicted:
		return "conflicted"
	case SyncStateSyncFailed:
		return "sync_failed"
	case SyncStatePushFailed:
		return "push_failed"
	case SyncStateInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// WorkerStatus is the last reported state and message for one workspace.
type WorkerStatus struct {
	State   SyncState `json:"state"`
	Message string    `json:"message,omitempty"`
}
