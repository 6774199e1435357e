package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"airr.io/student-analytics/internal/store"
)

func testDataset(prefix string, n int) store.Dataset {
	ds := make(store.Dataset, n)
	for i := range ds {
		ds[i] = store.StudentRecord{ID: prefix + string(rune('a'+i)), Name: prefix, SchoolType: store.SchoolTypeHighSchool, GraduationYear: 2024}
	}
	return ds
}

func TestWorkspaceStartsOnSample(t *testing.T) {
	w := NewWorkspace(testDataset("s", 2))
	require.Equal(t, ChannelSample, w.Active())
	require.Equal(t, []Channel{ChannelSample}, w.Available())

	_, ok := w.Dataset(ChannelCSV)
	require.False(t, ok)
	require.True(t, errors.Is(w.Select(ChannelCSV), ErrChannelEmpty))
	require.Equal(t, ChannelSample, w.Active())
}

func TestWorkspaceCommitActivatesAndSelectIsPure(t *testing.T) {
	sample := testDataset("s", 2)
	csv := testDataset("c", 3)
	remote := testDataset("r", 1)

	w := NewWorkspace(sample)
	require.NoError(t, w.Begin(ChannelCSV))
	require.True(t, w.Commit(ChannelCSV, csv))
	require.Equal(t, ChannelCSV, w.Active())

	require.NoError(t, w.Begin(ChannelRemote))
	require.True(t, w.CommitRemote(remote, RemoteConfig{URL: "http://x", Method: "GET"}))
	require.Equal(t, ChannelRemote, w.Active())
	require.Equal(t, []Channel{ChannelSample, ChannelCSV, ChannelRemote}, w.Available())

	snapshot := map[Channel]store.Dataset{}
	for _, ch := range channelOrder {
		ds, _ := w.Dataset(ch)
		snapshot[ch] = ds
	}

	for _, ch := range []Channel{ChannelSample, ChannelCSV, ChannelRemote, ChannelSample, ChannelRemote} {
		require.NoError(t, w.Select(ch))
		active, ds := w.ActiveDataset()
		require.Equal(t, ch, active)
		if diff := cmp.Diff(snapshot[ch], ds); diff != "" {
			t.Fatalf("active dataset for %s changed (-want +got):\n%s", ch, diff)
		}
	}
	for _, ch := range channelOrder {
		ds, _ := w.Dataset(ch)
		if diff := cmp.Diff(snapshot[ch], ds); diff != "" {
			t.Fatalf("dataset for %s mutated by switching (-want +got):\n%s", ch, diff)
		}
	}
}

func TestWorkspaceReturnsCopies(t *testing.T) {
	w := NewWorkspace(testDataset("s", 1))
	ds, _ := w.Dataset(ChannelSample)
	ds[0].Name = "mutated"

	again, _ := w.Dataset(ChannelSample)
	require.Equal(t, "s", again[0].Name)
}

func TestWorkspaceEmptyCommitIsNoOp(t *testing.T) {
	w := NewWorkspace(testDataset("s", 1))
	require.NoError(t, w.Begin(ChannelCSV))
	require.True(t, w.Commit(ChannelCSV, testDataset("c", 2)))
	require.NoError(t, w.Select(ChannelSample))

	require.NoError(t, w.Begin(ChannelCSV))
	require.False(t, w.Commit(ChannelCSV, store.Dataset{}))
	require.False(t, w.InFlight(ChannelCSV))
	require.Equal(t, ChannelSample, w.Active())
	ds, ok := w.Dataset(ChannelCSV)
	require.True(t, ok)
	require.Len(t, ds, 2)
}

func TestWorkspaceInFlightGuard(t *testing.T) {
	w := NewWorkspace(testDataset("s", 1))
	require.NoError(t, w.Begin(ChannelRemote))
	require.True(t, errors.Is(w.Begin(ChannelRemote), ErrIngestInProgress))
	// Other channels are independent.
	require.NoError(t, w.Begin(ChannelCSV))
	w.Abort(ChannelCSV)

	w.Abort(ChannelRemote)
	require.False(t, w.InFlight(ChannelRemote))
	require.NoError(t, w.Begin(ChannelRemote))
	require.Nil(t, w.RemoteConfig())
	_, ok := w.Dataset(ChannelRemote)
	require.False(t, ok)
}

func TestWorkspaceSampleIsReadOnly(t *testing.T) {
	w := NewWorkspace(testDataset("s", 1))
	require.True(t, errors.Is(w.Begin(ChannelSample), ErrReadOnlyChannel))
}

func TestWorkspaceConcurrentBeginAdmitsOne(t *testing.T) {
	w := NewWorkspace(testDataset("s", 1))
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Begin(ChannelCSV) == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, admitted)
}

func TestParseChannel(t *testing.T) {
	cases := map[string]Channel{
		"sample": ChannelSample,
		"CSV":    ChannelCSV,
		"mongo":  ChannelRemote,
		"remote": ChannelRemote,
		" api ":  ChannelRemote,
	}
	for in, want := range cases {
		got, err := ParseChannel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseChannel("ftp")
	require.True(t, errors.Is(err, ErrUnknownChannel))
}
