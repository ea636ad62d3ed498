// Package remotes maintains the binding between local files and remote
// documents across push, pull and watch operations.
package remotes

import (
	"strings"
)

// WatchDirection is the direction of a server-side watch.
type WatchDirection string

const (
	WatchBi         WatchDirection = "bi"
	WatchFromRemote WatchDirection = "from-remote"
	WatchToRemote   WatchDirection = "to-remote"
)

// RemoteInfo is the tracked state of one (file, url) binding. Timestamps
// are UNIX seconds.
type RemoteInfo struct {
	PulledAt *uint64 `json:"pulledAt,omitempty"`
	PushedAt *uint64 `json:"pushedAt,omitempty"`

	WatchID        string         `json:"watchId,omitempty"`
	WatchDirection WatchDirection `json:"watchDirection,omitempty"`
}

// IsWatched reports whether a server-side watch is active for the
// binding.
func (r *RemoteInfo) IsWatched() bool {
	return r != nil && strings.TrimSpace(r.WatchID) != ""
}

// RemoteStatus classifies the relationship between a local file and one
// of its remotes.
type RemoteStatus string

const (
	// StatusSynced: neither side changed since the last sync.
	StatusSynced RemoteStatus = "Synced"
	// StatusAhead: the remote changed since the last sync.
	StatusAhead RemoteStatus = "Ahead"
	// StatusBehind: the local file changed since the last sync.
	StatusBehind RemoteStatus = "Behind"
	// StatusDiverged: both sides changed since the last sync.
	StatusDiverged RemoteStatus = "Diverged"
	// StatusDeleted: the local file no longer exists.
	StatusDeleted RemoteStatus = "Deleted"
	// StatusUnknown: not enough information to classify.
	StatusUnknown RemoteStatus = "Unknown"
)

// Tolerances account for clock skew and propagation delays when
// comparing modification times against sync times.
const (
	// LocalToleranceSecs allows for the local write that records a sync
	// touching the file just after the timestamp is taken.
	LocalToleranceSecs uint64 = 5
	// RemoteToleranceSecs allows for remote services that keep updating
	// a document's modification time briefly after a push.
	RemoteToleranceSecs uint64 = 30
)

// CalculateStatus classifies one remote given the local and remote
// modification times and the recorded sync times. Mirrors are compared
// against the most recent sync time available; with no sync times at
// all the modification times are compared directly with the remote
// tolerance applied both ways.
func CalculateStatus(localStatus RemoteStatus, localMod, remoteMod, pushedAt, pulledAt *uint64) RemoteStatus {
	if localStatus == StatusDeleted {
		// Only mark Ahead if the remote demonstrably exists.
		if remoteMod != nil {
			return StatusAhead
		}
		return StatusUnknown
	}

	if localMod == nil || remoteMod == nil {
		return StatusUnknown
	}
	local, remote := *localMod, *remoteMod

	classify := func(reference uint64) RemoteStatus {
		localChanged := local > reference+LocalToleranceSecs
		remoteChanged := remote > reference+RemoteToleranceSecs
		switch {
		case localChanged && remoteChanged:
			return StatusDiverged
		case localChanged:
			return StatusBehind
		case remoteChanged:
			return StatusAhead
		default:
			return StatusSynced
		}
	}

	switch {
	case pushedAt != nil && pulledAt != nil:
		lastSynced := *pushedAt
		if *pulledAt > lastSynced {
			lastSynced = *pulledAt
		}
		return classify(lastSynced)
	case pushedAt != nil:
		return classify(*pushedAt)
	case pulledAt != nil:
		return classify(*pulledAt)
	default:
		// No sync times: compare modification times directly.
		if local > remote+RemoteToleranceSecs {
			return StatusBehind
		}
		if remote > local+RemoteToleranceSecs {
			return StatusAhead
		}
		return StatusSynced
	}
}
