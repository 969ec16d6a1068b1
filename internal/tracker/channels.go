package tracker

import (
	"time"

	"github.com/lnfeed/lnfeed/internal/lnferr"
	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/store"
)

// ChannelTracker diffs the live channel set reported by the remote API
// against the persisted lifecycle table: new channel IDs get an open
// record, IDs that vanished get a close record timestamped now.
type ChannelTracker struct {
	store *store.Store
}

// NewChannelTracker returns a tracker bound to st.
func NewChannelTracker(st *store.Store) *ChannelTracker {
	return &ChannelTracker{store: st}
}

// Reconcile computes the symmetric difference between liveChannels and
// the persisted open set, recording opens and closes as needed.
func (t *ChannelTracker) Reconcile(liveChannels []remoteclient.Channel) error {
	now := time.Now()

	live := make(map[string]remoteclient.Channel, len(liveChannels))
	for _, c := range liveChannels {
		live[c.ChannelID] = c
	}

	persistedOpen, err := t.store.LoadOpenChannels()
	if err != nil {
		return lnferr.Store("loading open channels", err)
	}
	persisted := make(map[string]bool, len(persistedOpen))
	for _, lc := range persistedOpen {
		persisted[lc.ChannelID] = true
	}

	for id, c := range live {
		if persisted[id] {
			continue
		}
		openedAt := now
		if c.FundedAtUnix > 0 {
			openedAt = time.Unix(c.FundedAtUnix, 0)
		}
		if err := t.store.RecordChannelOpen(id, c.PeerID, c.CapacitySats, openedAt); err != nil {
			return lnferr.Store("recording channel open", err)
		}
		if err := t.store.UpsertPeer(&store.PeerRecord{
			PeerID:           c.PeerID,
			FirstSeen:        openedAt,
			CurrentChannelID: id,
			LastChannelID:    id,
		}); err != nil {
			return lnferr.Store("upserting peer for new channel", err)
		}
	}

	for id := range persisted {
		if _, stillLive := live[id]; stillLive {
			continue
		}
		if err := t.store.RecordChannelClose(id, now); err != nil {
			return lnferr.Store("recording channel close", err)
		}
	}

	return nil
}

// Age returns how long channelID has been open, using the persisted
// opened_at timestamp.
func (t *ChannelTracker) Age(channelID string) (time.Duration, error) {
	lc, err := t.store.LoadLifecycle(channelID)
	if err != nil {
		return 0, lnferr.Store("loading lifecycle for age", err)
	}
	if lc == nil {
		return 0, nil
	}
	return time.Since(lc.OpenedAt), nil
}
