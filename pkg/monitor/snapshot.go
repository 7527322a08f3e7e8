package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/jingkaihe/skillet/pkg/catalog"
)

// Snapshot is the serializable health state of a session: exactly the
// counters the drift heuristics need, no conversation text.
type Snapshot struct {
	State                     State                `json:"state"`
	MessageCount              int                  `json:"messageCount"`
	Topics                    []catalog.Category   `json:"topics"`
	CategoryWindow            [][]catalog.Category `json:"categoryWindow"`
	ErrorFingerprints         []string             `json:"errorFingerprints"`
	ClarificationFingerprints []string             `json:"clarificationFingerprints"`
	Spawns                    int                  `json:"spawns"`
	Completions               int                  `json:"completions"`
	UpdatedAt                 time.Time            `json:"updatedAt"`
}

// Snapshot captures the monitor's current state
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var topics []catalog.Category
	for _, c := range catalog.Categories {
		if m.topics[c] {
			topics = append(topics, c)
		}
	}

	window := make([][]catalog.Category, 0, len(m.categoryWindow.turns))
	for _, turn := range m.categoryWindow.turns {
		window = append(window, append([]catalog.Category(nil), turn...))
	}

	return Snapshot{
		State:                     m.state,
		MessageCount:              m.messageCount,
		Topics:                    topics,
		CategoryWindow:            window,
		ErrorFingerprints:         m.errors.snapshot(),
		ClarificationFingerprints: m.clarifications.snapshot(),
		Spawns:                    m.spawns,
		Completions:               m.completions,
		UpdatedAt:                 time.Now(),
	}
}

// Restore replaces the monitor's state with a snapshot, so a host
// restart resumes the same health assessment.
func (m *Monitor) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	if s.State != "" {
		m.state = s.State
	}
	m.messageCount = s.MessageCount
	for _, c := range s.Topics {
		m.topics[c] = true
	}
	for _, turn := range s.CategoryWindow {
		m.categoryWindow.push(turn)
	}
	m.errors.restore(s.ErrorFingerprints)
	m.clarifications.restore(s.ClarificationFingerprints)
	m.spawns = s.Spawns
	m.completions = s.Completions
}

// StateStore persists session snapshots as JSON files, one per session.
// Writes go through lockedfile so a crash mid-write never leaves a
// corrupt snapshot behind.
type StateStore struct {
	dir string
}

// NewStateStore creates a snapshot store rooted at dir
func NewStateStore(dir string) (*StateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create monitor state directory")
	}
	return &StateStore{dir: dir}, nil
}

func (s *StateStore) path(sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("session-%s.json", sessionID))
}

// Save writes the monitor's snapshot for a session
func (s *StateStore) Save(sessionID string, m *Monitor) error {
	snapshot := m.Snapshot()

	return lockedfile.Transform(s.path(sessionID), func([]byte) ([]byte, error) {
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal monitor snapshot")
		}
		return data, nil
	})
}

// Load restores a session's snapshot into the monitor. It reports false
// without error when no snapshot exists.
func (s *StateStore) Load(sessionID string, m *Monitor) (bool, error) {
	path := s.path(sessionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	data, err := lockedfile.Read(path)
	if err != nil {
		return false, errors.Wrap(err, "failed to read monitor snapshot")
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return false, errors.Wrap(err, "failed to unmarshal monitor snapshot")
	}

	m.Restore(snapshot)
	return true, nil
}

// Clear removes a session's snapshot, if present
func (s *StateStore) Clear(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove monitor snapshot")
	}
	return nil
}
