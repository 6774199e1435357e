package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"airr.io/student-analytics/internal/store"
)

const (
	welcomeMessage = "Welcome to AIRR Intelligence. Three distinct data sources are now available: " +
		"the local Sample set, a CSV import channel, and the MongoDB API bridge."
	inferenceApology = "I encountered an error during inference. Please verify that your API key is " +
		"correctly set in the environment variables and try again."

	transcriptLimit = 500
)

// Analyzer answers a question about a dataset.
type Analyzer interface {
	Analyze(ctx context.Context, question string, ds store.Dataset) (*store.AnalysisResponse, error)
}

// Fetcher retrieves a dataset from a remote endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, cfg RemoteConfig) (store.Dataset, error)
}

type sessionState struct {
	workspace *Workspace
	analyzing bool      // guarded by ChatService.mu
	lastSeen  time.Time // guarded by ChatService.mu
}

// ChatService owns every live session: its workspace of datasets and its
// persisted transcript.
type ChatService struct {
	dbStore  *store.SQLiteStore
	analyzer Analyzer
	fetcher  Fetcher
	logger   *zap.Logger

	sample     store.Dataset
	demoCSV    store.Dataset
	demoRemote store.Dataset

	mu       sync.Mutex
	sessions map[string]*sessionState
	now      func() time.Time
}

func NewChatService(db *store.SQLiteStore, analyzer Analyzer, fetcher Fetcher, logger *zap.Logger) (*ChatService, error) {
	sample, _, err := store.LoadBundled(store.BundledSample)
	if err != nil {
		return nil, err
	}
	demoCSV, _, err := store.LoadBundled(store.BundledDemoCSV)
	if err != nil {
		return nil, err
	}
	demoRemote, _, err := store.LoadBundled(store.BundledDemoAPI)
	if err != nil {
		return nil, err
	}
	return &ChatService{
		dbStore:    db,
		analyzer:   analyzer,
		fetcher:    fetcher,
		logger:     logger,
		sample:     sample,
		demoCSV:    demoCSV,
		demoRemote: demoRemote,
		sessions:   map[string]*sessionState{},
		now:        time.Now,
	}, nil
}

// SessionState is the snapshot the client needs to render its header.
type SessionState struct {
	SessionID    string         `json:"session_id"`
	Active       Channel        `json:"active_channel"`
	Available    []Channel      `json:"available_channels"`
	Ingesting    []Channel      `json:"ingesting_channels"`
	Analyzing    bool           `json:"analyzing"`
	RemoteConfig *RemoteConfig  `json:"remote_config,omitempty"`
	Summary      DatasetSummary `json:"summary"`
}

func (s *ChatService) CreateSession() (*store.Session, []store.Message, error) {
	session, err := s.dbStore.CreateSession()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session in DB: %w", err)
	}

	welcome := store.Message{SessionID: session.ID, Role: store.RoleAssistant, Content: welcomeMessage}
	if err := s.dbStore.CreateMessage(&welcome); err != nil {
		if _, delErr := s.dbStore.DeleteSession(session.ID); delErr != nil {
			s.logger.Warn("failed to remove half-created session", zap.String("session_id", session.ID), zap.Error(delErr))
		}
		return nil, nil, fmt.Errorf("failed to store welcome message: %w", err)
	}

	s.mu.Lock()
	s.sessions[session.ID] = &sessionState{workspace: NewWorkspace(s.sample), lastSeen: s.now()}
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session_id", session.ID))
	return session, []store.Message{welcome}, nil
}

// session returns the live state for sessionID. A session whose transcript
// is stored but which is not in memory (after a restart or eviction) is
// restored with a fresh workspace on the sample channel.
func (s *ChatService) session(sessionID string) (*sessionState, error) {
	s.mu.Lock()
	if st, ok := s.sessions[sessionID]; ok {
		st.lastSeen = s.now()
		s.mu.Unlock()
		return st, nil
	}
	s.mu.Unlock()

	stored, err := s.dbStore.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if stored == nil {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{workspace: NewWorkspace(s.sample)}
		s.sessions[sessionID] = st
		s.logger.Info("session restored from transcript store", zap.String("session_id", sessionID))
	}
	st.lastSeen = s.now()
	return st, nil
}

// DeleteSession drops the live workspace and the stored transcript.
func (s *ChatService) DeleteSession(sessionID string) error {
	s.mu.Lock()
	_, live := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	found, err := s.dbStore.DeleteSession(sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if !found && !live {
		return ErrSessionNotFound
	}
	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// EvictIdle drops in-memory workspaces not touched for maxIdle. Sessions with
// an analysis or ingestion running are kept. Transcripts stay stored, so an
// evicted session comes back on the sample channel when next used.
func (s *ChatService) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, st := range s.sessions {
		if st.analyzing || st.lastSeen.After(cutoff) {
			continue
		}
		if st.workspace.InFlight(ChannelCSV) || st.workspace.InFlight(ChannelRemote) {
			continue
		}
		delete(s.sessions, id)
		evicted++
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *ChatService) RunEviction(ctx context.Context, maxIdle, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.EvictIdle(maxIdle); n > 0 {
				s.logger.Info("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *ChatService) State(sessionID string) (*SessionState, error) {
	st, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	active, ds := st.workspace.ActiveDataset()

	ingesting := []Channel{}
	for _, ch := range []Channel{ChannelCSV, ChannelRemote} {
		if st.workspace.InFlight(ch) {
			ingesting = append(ingesting, ch)
		}
	}

	s.mu.Lock()
	analyzing := st.analyzing
	s.mu.Unlock()

	return &SessionState{
		SessionID:    sessionID,
		Active:       active,
		Available:    st.workspace.Available(),
		Ingesting:    ingesting,
		Analyzing:    analyzing,
		RemoteConfig: st.workspace.RemoteConfig(),
		Summary:      Summarize(ds),
	}, nil
}

// Records returns the active channel and a copy of its dataset.
func (s *ChatService) Records(sessionID string) (Channel, store.Dataset, error) {
	st, err := s.session(sessionID)
	if err != nil {
		return "", nil, err
	}
	ch, ds := st.workspace.ActiveDataset()
	return ch, ds, nil
}

func (s *ChatService) Messages(sessionID string) ([]store.Message, error) {
	if _, err := s.session(sessionID); err != nil {
		return nil, err
	}
	return s.dbStore.GetMessagesBySessionID(sessionID, transcriptLimit, 0)
}

// PostMessage records the question, asks the analyzer about the active
// dataset and records the reply. Analyzer failures become an apology message
// rather than an error.
func (s *ChatService) PostMessage(ctx context.Context, sessionID, content string) (*store.Message, error) {
	st, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if st.analyzing {
		s.mu.Unlock()
		return nil, ErrAnalysisInProgress
	}
	st.analyzing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		st.analyzing = false
		s.mu.Unlock()
	}()

	userMsg := store.Message{SessionID: sessionID, Role: store.RoleUser, Content: content}
	if err := s.dbStore.CreateMessage(&userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	channel, ds := st.workspace.ActiveDataset()
	assistantMsg := store.Message{SessionID: sessionID, Role: store.RoleAssistant}
	analysis, err := s.analyzer.Analyze(ctx, content, ds)
	if err != nil {
		s.logger.Error("analysis failed",
			zap.String("session_id", sessionID), zap.String("channel", string(channel)), zap.Error(err))
		assistantMsg.Content = inferenceApology
	} else {
		assistantMsg.Content = analysis.Answer
		assistantMsg.Analysis = analysis
	}

	if err := s.dbStore.CreateMessage(&assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	return &assistantMsg, nil
}

// ImportCSV parses uploaded text into the CSV channel. Zero usable rows is a
// no-op: the previous dataset and active channel stay as they were.
func (s *ChatService) ImportCSV(sessionID, filename, text string) (int, error) {
	st, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	if err := st.workspace.Begin(ChannelCSV); err != nil {
		return 0, err
	}
	records := ParseStudentCSV(text)
	if !st.workspace.Commit(ChannelCSV, records) {
		s.logger.Info("csv import produced no rows, keeping current dataset",
			zap.String("session_id", sessionID), zap.String("file", filename))
		return 0, nil
	}
	s.notify(sessionID, fmt.Sprintf("CSV Imported: %d records processed from %s.", len(records), filename))
	return len(records), nil
}

func (s *ChatService) LoadDemoCSV(sessionID string) (int, error) {
	st, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	if err := st.workspace.Begin(ChannelCSV); err != nil {
		return 0, err
	}
	st.workspace.Commit(ChannelCSV, s.demoCSV)
	s.notify(sessionID, "CSV Channel: Pre-loaded with demo student records (Tech Pioneers).")
	return len(s.demoCSV), nil
}

// ConnectRemote fetches from the configured endpoint. On any failure the
// remote channel keeps whatever it held before.
func (s *ChatService) ConnectRemote(ctx context.Context, sessionID string, cfg RemoteConfig) (int, error) {
	st, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	if err := st.workspace.Begin(ChannelRemote); err != nil {
		return 0, err
	}

	records, err := s.fetcher.Fetch(ctx, cfg)
	if err != nil {
		st.workspace.Abort(ChannelRemote)
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			s.logger.Info("remote connect rejected", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			s.logger.Warn("remote connect failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return 0, err
	}

	st.workspace.CommitRemote(records, cfg)
	s.notify(sessionID, fmt.Sprintf("API synchronized: Active connection to %s. %d records retrieved.", cfg.URL, len(records)))
	return len(records), nil
}

// ConnectRemoteDemo fills the remote channel from the bundled demo set
// without any network call.
func (s *ChatService) ConnectRemoteDemo(sessionID string, cfg RemoteConfig) (int, error) {
	st, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	if err := st.workspace.Begin(ChannelRemote); err != nil {
		return 0, err
	}
	cfg.URL = DemoRemoteURL
	st.workspace.CommitRemote(s.demoRemote, cfg)
	s.notify(sessionID, "API Channel: Connected to simulated MongoDB source (Science Leaders).")
	return len(s.demoRemote), nil
}

func (s *ChatService) SelectChannel(sessionID string, ch Channel) error {
	st, err := s.session(sessionID)
	if err != nil {
		return err
	}
	return st.workspace.Select(ch)
}

func (s *ChatService) notify(sessionID, content string) {
	msg := store.Message{SessionID: sessionID, Role: store.RoleAssistant, Content: content}
	if err := s.dbStore.CreateMessage(&msg); err != nil {
		s.logger.Warn("failed to store status message", zap.String("session_id", sessionID), zap.Error(err))
	}
}
