package domain

// SessionLifecycle is the runtime state of one torrent session.
type SessionLifecycle string

const (
	LifecycleStarting         SessionLifecycle = "starting"
	LifecycleFetchingMetadata SessionLifecycle = "fetching_metadata"
	LifecycleDownloading      SessionLifecycle = "downloading"
	LifecycleClosed           SessionLifecycle = "closed"
)

var lifecycleTransitions = map[SessionLifecycle][]SessionLifecycle{
	LifecycleStarting:         {LifecycleFetchingMetadata, LifecycleDownloading, LifecycleClosed},
	LifecycleFetchingMetadata: {LifecycleDownloading, LifecycleClosed},
	LifecycleDownloading:      {LifecycleClosed},
	LifecycleClosed:           nil,
}

// CanTransitionLifecycle reports whether a session may move between states.
func CanTransitionLifecycle(from, to SessionLifecycle) bool {
	for _, s := range lifecycleTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ToStatus maps the runtime lifecycle to the persisted catalogue status.
func (l SessionLifecycle) ToStatus(finished bool) TorrentStatus {
	switch l {
	case LifecycleStarting, LifecycleFetchingMetadata:
		return TorrentPending
	case LifecycleDownloading:
		if finished {
			return TorrentCompleted
		}
		return TorrentActive
	case LifecycleClosed:
		return TorrentStopped
	default:
		return TorrentError
	}
}
