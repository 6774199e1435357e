package core

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"airr.io/student-analytics/internal/store"
)

type fakeAnalyzer struct {
	resp    *store.AnalysisResponse
	err     error
	gotQ    string
	gotData store.Dataset
	block   chan struct{}
	started chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, question string, ds store.Dataset) (*store.AnalysisResponse, error) {
	f.gotQ = question
	f.gotData = ds
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.resp, f.err
}

type fakeFetcher struct {
	ds    store.Dataset
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, cfg RemoteConfig) (store.Dataset, error) {
	f.calls++
	return f.ds, f.err
}

func newTestChatService(t *testing.T, a Analyzer, f Fetcher) *ChatService {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cs, err := NewChatService(db, a, f, zap.NewNop())
	require.NoError(t, err)
	return cs
}

func TestCreateSessionStartsWithWelcome(t *testing.T) {
	cs := newTestChatService(t, &fakeAnalyzer{}, &fakeFetcher{})
	session, msgs, err := cs.CreateSession()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, store.RoleAssistant, msgs[0].Role)

	state, err := cs.State(session.ID)
	require.NoError(t, err)
	require.Equal(t, ChannelSample, state.Active)
	require.Equal(t, []Channel{ChannelSample}, state.Available)
	require.Equal(t, len(cs.sample), state.Summary.Records)

	_, err = cs.State("missing")
	require.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestPostMessageUsesActiveDataset(t *testing.T) {
	analyzer := &fakeAnalyzer{resp: &store.AnalysisResponse{Answer: "Five records.", CalculationSummary: "count"}}
	cs := newTestChatService(t, analyzer, &fakeFetcher{})
	session, _, err := cs.CreateSession()
	require.NoError(t, err)

	_, err = cs.LoadDemoCSV(session.ID)
	require.NoError(t, err)

	reply, err := cs.PostMessage(context.Background(), session.ID, "How many students?")
	require.NoError(t, err)
	require.Equal(t, "Five records.", reply.Content)
	require.NotNil(t, reply.Analysis)
	require.Equal(t, "How many students?", analyzer.gotQ)
	require.Equal(t, cs.demoCSV, analyzer.gotData)

	msgs, err := cs.Messages(session.ID)
	require.NoError(t, err)
	// welcome, demo status, question, answer
	require.Len(t, msgs, 4)
	require.Equal(t, store.RoleUser, msgs[2].Role)
	require.Equal(t, "count", msgs[3].Analysis.CalculationSummary)
}

func TestPostMessageAnalyzerFailureBecomesApology(t *testing.T) {
	cs := newTestChatService(t, &fakeAnalyzer{err: errors.New("quota exceeded")}, &fakeFetcher{})
	session, _, err := cs.CreateSession()
	require.NoError(t, err)

	reply, err := cs.PostMessage(context.Background(), session.ID, "anything")
	require.NoError(t, err)
	require.Equal(t, inferenceApology, reply.Content)
	require.Nil(t, reply.Analysis)
}

func TestPostMessageOneAnalysisAtATime(t *testing.T) {
	analyzer := &fakeAnalyzer{
		resp:    &store.AnalysisResponse{Answer: "done"},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	cs := newTestChatService(t, analyzer, &fakeFetcher{})
	session, _, err := cs.CreateSession()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := cs.PostMessage(context.Background(), session.ID, "first")
		done <- err
	}()
	<-analyzer.started

	_, err = cs.PostMessage(context.Background(), session.ID, "second")
	require.True(t, errors.Is(err, ErrAnalysisInProgress))
	state, err := cs.State(session.ID)
	require.NoError(t, err)
	require.True(t, state.Analyzing)

	close(analyzer.block)
	require.NoError(t, <-done)
	state, err = cs.State(session.ID)
	require.NoError(t, err)
	require.False(t, state.Analyzing)
}

func TestImportCSVReplacesAndActivates(t *testing.T) {
	cs := newTestChatService(t, &fakeAnalyzer{}, &fakeFetcher{})
	session, _, err := cs.CreateSession()
	require.NoError(t, err)

	n, err := cs.ImportCSV(session.ID, "cohort.csv", csvHeader+"\nA,18,,,,,,,3.0,,,,,2025\nB,19,,,,,,,3.2,,,,,2025\n")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	ch, ds, err := cs.Records(session.ID)
	require.NoError(t, err)
	require.Equal(t, ChannelCSV, ch)
	require.Len(t, ds, 2)

	msgs, err := cs.Messages(session.ID)
	require.NoError(t, err)
	require.Equal(t, "CSV Imported: 2 records processed from cohort.csv.", msgs[len(msgs)-1].Content)
}

func TestImportCSVWithNoRowsIsNoOp(t *testing.T) {
	cs := newTestChatService(t, &fakeAnalyzer{}, &fakeFetcher{})
	session, _, err := cs.CreateSession()
	require.NoError(t, err)
	_, err = cs.LoadDemoCSV(session.ID)
	require.NoError(t, err)
	require.NoError(t, cs.SelectChannel(session.ID, ChannelSample))

	before, err := cs.Messages(session.ID)
	require.NoError(t, err)

	n, err := cs.ImportCSV(session.ID, "empty.csv", csvHeader+"\n\n")
	require.NoError(t, err)
	require.Zero(t, n)

	state, err := cs.State(session.ID)
	require.NoError(t, err)
	require.Equal(t, ChannelSample, state.Active)
	require.Empty(t, state.Ingesting)

	require.NoError(t, cs.SelectChannel(session.ID, ChannelCSV))
	_, ds, err := cs.Records(session.ID)
	require.NoError(t, err)
	require.Equal(t, cs.demoCSV, ds)

	after, err := cs.Messages(session.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
}

func TestConnectRemoteSuccessAndFailureKeepsData(t *testing.T) {
	fetched := testDataset("m", 3)
	fetcher := &fakeFetcher{ds: fetched}
	cs := newTestChatService(t, &fakeAnalyzer{}, fetcher)
	session, _, err := cs.CreateSession()
	require.NoError(t, err)

	cfg := RemoteConfig{URL: "https://api.example.com/students", Method: "GET", Headers: "{}"}
	n, err := cs.ConnectRemote(context.Background(), session.ID, cfg)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	state, err := cs.State(session.ID)
	require.NoError(t, err)
	require.Equal(t, ChannelRemote, state.Active)
	require.Equal(t, cfg, *state.RemoteConfig)

	require.NoError(t, cs.SelectChannel(session.ID, ChannelSample))
	fetcher.ds, fetcher.err = nil, &NoDataError{}
	_, err = cs.ConnectRemote(context.Background(), session.ID, RemoteConfig{URL: "https://other", Method: "GET", Headers: "{}"})
	var noData *NoDataError
	require.True(t, errors.As(err, &noData))

	state, err = cs.State(session.ID)
	require.NoError(t, err)
	require.Equal(t, ChannelSample, state.Active)
	require.Equal(t, cfg.URL, state.RemoteConfig.URL)
	require.Empty(t, state.Ingesting)

	require.NoError(t, cs.SelectChannel(session.ID, ChannelRemote))
	_, ds, err := cs.Records(session.ID)
	require.NoError(t, err)
	require.Equal(t, fetched, ds)
}

func TestConnectRemoteDemoSkipsNetwork(t *testing.T) {
	fetcher := &fakeFetcher{}
	cs := newTestChatService(t, &fakeAnalyzer{}, fetcher)
	session, _, err := cs.CreateSession()
	require.NoError(t, err)

	n, err := cs.ConnectRemoteDemo(session.ID, RemoteConfig{URL: "https://ignored", Method: "GET"})
	require.NoError(t, err)
	require.Equal(t, len(cs.demoRemote), n)
	require.Zero(t, fetcher.calls)

	state, err := cs.State(session.ID)
	require.NoError(t, err)
	require.Equal(t, ChannelRemote, state.Active)
	require.Equal(t, DemoRemoteURL, state.RemoteConfig.URL)
}

func TestSelectChannelRequiresPopulated(t *testing.T) {
	cs := newTestChatService(t, &fakeAnalyzer{}, &fakeFetcher{})
	session, _, err := cs.CreateSession()
	require.NoError(t, err)
	require.True(t, errors.Is(cs.SelectChannel(session.ID, ChannelRemote), ErrChannelEmpty))
	require.True(t, errors.Is(cs.SelectChannel("nope", ChannelSample), ErrSessionNotFound))
}

func TestSessionRestoredAfterRestart(t *testing.T) {
	db, err := store.NewSQLiteStore(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	first, err := NewChatService(db, &fakeAnalyzer{resp: &store.AnalysisResponse{Answer: "ok"}}, &fakeFetcher{}, zap.NewNop())
	require.NoError(t, err)
	session, _, err := first.CreateSession()
	require.NoError(t, err)
	_, err = first.LoadDemoCSV(session.ID)
	require.NoError(t, err)
	_, err = first.PostMessage(context.Background(), session.ID, "How many?")
	require.NoError(t, err)
	before, err := first.Messages(session.ID)
	require.NoError(t, err)

	restarted, err := NewChatService(db, &fakeAnalyzer{}, &fakeFetcher{}, zap.NewNop())
	require.NoError(t, err)
	after, err := restarted.Messages(session.ID)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
	require.Equal(t, before[len(before)-1].Content, after[len(after)-1].Content)

	// Datasets are not persisted: the restored workspace starts on the sample.
	state, err := restarted.State(session.ID)
	require.NoError(t, err)
	require.Equal(t, ChannelSample, state.Active)
	require.Equal(t, []Channel{ChannelSample}, state.Available)

	_, err = restarted.Messages("never-created")
	require.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestDeleteSession(t *testing.T) {
	cs := newTestChatService(t, &fakeAnalyzer{}, &fakeFetcher{})
	session, _, err := cs.CreateSession()
	require.NoError(t, err)

	require.NoError(t, cs.DeleteSession(session.ID))
	_, err = cs.State(session.ID)
	require.True(t, errors.Is(err, ErrSessionNotFound))
	_, err = cs.Messages(session.ID)
	require.True(t, errors.Is(err, ErrSessionNotFound))
	require.True(t, errors.Is(cs.DeleteSession(session.ID), ErrSessionNotFound))
}

func TestEvictIdleSessions(t *testing.T) {
	cs := newTestChatService(t, &fakeAnalyzer{}, &fakeFetcher{})
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	cs.now = func() time.Time { return clock }

	idle, _, err := cs.CreateSession()
	require.NoError(t, err)
	busy, _, err := cs.CreateSession()
	require.NoError(t, err)
	_, err = cs.LoadDemoCSV(idle.ID)
	require.NoError(t, err)

	clock = clock.Add(50 * time.Minute)
	_, err = cs.State(busy.ID)
	require.NoError(t, err)
	require.Zero(t, cs.EvictIdle(time.Hour))

	clock = clock.Add(30 * time.Minute)
	require.Equal(t, 1, cs.EvictIdle(time.Hour))

	cs.mu.Lock()
	_, idleLive := cs.sessions[idle.ID]
	_, busyLive := cs.sessions[busy.ID]
	cs.mu.Unlock()
	require.False(t, idleLive)
	require.True(t, busyLive)

	// The transcript survives eviction; the datasets do not.
	msgs, err := cs.Messages(idle.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	state, err := cs.State(idle.ID)
	require.NoError(t, err)
	require.Equal(t, ChannelSample, state.Active)
}

func TestEvictIdleKeepsSessionsWithWorkRunning(t *testing.T) {
	cs := newTestChatService(t, &fakeAnalyzer{}, &fakeFetcher{})
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	cs.now = func() time.Time { return clock }

	session, _, err := cs.CreateSession()
	require.NoError(t, err)
	st, err := cs.session(session.ID)
	require.NoError(t, err)
	require.NoError(t, st.workspace.Begin(ChannelRemote))

	clock = clock.Add(24 * time.Hour)
	require.Zero(t, cs.EvictIdle(time.Hour))

	st.workspace.Abort(ChannelRemote)
	require.Equal(t, 1, cs.EvictIdle(time.Hour))
}

func TestCreateSessionRollsBackWhenWelcomeFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.db")
	db, err := store.NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cs, err := NewChatService(db, &fakeAnalyzer{}, &fakeFetcher{}, zap.NewNop())
	require.NoError(t, err)

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	_, err = raw.Exec(`CREATE TRIGGER reject_messages BEFORE INSERT ON messages BEGIN SELECT RAISE(ABORT, 'messages disabled'); END;`)
	require.NoError(t, err)

	_, _, err = cs.CreateSession()
	require.Error(t, err)

	var sessions int
	require.NoError(t, raw.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&sessions))
	require.Zero(t, sessions)
	cs.mu.Lock()
	require.Empty(t, cs.sessions)
	cs.mu.Unlock()
}
