package core

import (
	"fmt"
	"strings"
	"sync"

	"airr.io/student-analytics/internal/store"
)

type Channel string

const (
	ChannelSample Channel = "sample"
	ChannelCSV    Channel = "csv"
	ChannelRemote Channel = "remote"
)

var channelOrder = []Channel{ChannelSample, ChannelCSV, ChannelRemote}

// ParseChannel accepts the wire names plus "mongo" for the remote channel.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sample":
		return ChannelSample, nil
	case "csv", "text", "text-import":
		return ChannelCSV, nil
	case "remote", "mongo", "api":
		return ChannelRemote, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// Workspace holds one dataset per channel plus the active-channel selector
// for a single chat session. Datasets are only ever replaced whole.
//
// Ingestion follows Begin -> (Commit | Abort). Begin fails while the same
// channel already has an ingestion in flight.
type Workspace struct {
	mu           sync.Mutex
	datasets     map[Channel]store.Dataset
	active       Channel
	inFlight     map[Channel]bool
	remoteConfig *RemoteConfig
}

func NewWorkspace(sample store.Dataset) *Workspace {
	return &Workspace{
		datasets: map[Channel]store.Dataset{ChannelSample: sample.Clone()},
		active:   ChannelSample,
		inFlight: map[Channel]bool{},
	}
}

func (w *Workspace) Active() Channel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Dataset returns a copy of the channel's dataset and whether it was ever loaded.
func (w *Workspace) Dataset(ch Channel) (store.Dataset, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ds, ok := w.datasets[ch]
	return ds.Clone(), ok
}

func (w *Workspace) ActiveDataset() (Channel, store.Dataset) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active, w.datasets[w.active].Clone()
}

// Available lists the populated channels in display order.
func (w *Workspace) Available() []Channel {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Channel, 0, len(channelOrder))
	for _, ch := range channelOrder {
		if _, ok := w.datasets[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// RemoteConfig returns the config of the last successful remote load.
func (w *Workspace) RemoteConfig() *RemoteConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remoteConfig == nil {
		return nil
	}
	cfg := *w.remoteConfig
	return &cfg
}

// Select switches the active channel. It never touches any dataset.
func (w *Workspace) Select(ch Channel) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.datasets[ch]; !ok {
		return fmt.Errorf("%w: %s", ErrChannelEmpty, ch)
	}
	w.active = ch
	return nil
}

func (w *Workspace) InFlight(ch Channel) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight[ch]
}

func (w *Workspace) Begin(ch Channel) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch == ChannelSample {
		return ErrReadOnlyChannel
	}
	if w.inFlight[ch] {
		return ErrIngestInProgress
	}
	w.inFlight[ch] = true
	return nil
}

// Commit replaces the channel's dataset, makes it active and ends the
// ingestion. An empty dataset is a no-op that leaves everything in place.
func (w *Workspace) Commit(ch Channel, ds store.Dataset) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commitLocked(ch, ds)
}

// CommitRemote is Commit for the remote channel that also records cfg.
func (w *Workspace) CommitRemote(ds store.Dataset, cfg RemoteConfig) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.commitLocked(ChannelRemote, ds) {
		return false
	}
	w.remoteConfig = &cfg
	return true
}

func (w *Workspace) commitLocked(ch Channel, ds store.Dataset) bool {
	delete(w.inFlight, ch)
	if len(ds) == 0 {
		return false
	}
	w.datasets[ch] = ds.Clone()
	w.active = ch
	return true
}

// Abort ends an ingestion without touching any dataset.
func (w *Workspace) Abort(ch Channel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, ch)
}
