package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	sessionFile = "session.json"
)

// SessionState represents the persisted chat session. It carries the
// conversation ID the gateway threads transcripts by, the model in use, and
// the message history so a new chat invocation can continue where the last
// one stopped.
type SessionState struct {
	// ConversationID groups this session's turns in the transcript store.
	ConversationID string `json:"conversation_id"`

	// Model is the model the session last talked to.
	Model string `json:"model,omitempty"`

	// Messages is the conversation history in chronological order
	// (oldest first).
	Messages []SessionMessage `json:"messages"`
}

// SessionMessage represents a single message in the session history.
type SessionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LoadSessionState loads the session from a target .patchbay/session.json.
// Returns nil, nil if no session exists (empty/new conversation state).
// If overrideDir is non-empty, it is used instead of the default ~/.patchbay/
// location.
func (m *Manager) LoadSessionState(overrideDir string) (*SessionState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, sessionFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	state := &SessionState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}

	return state, nil
}

// SaveSession persists the session to a target .patchbay/session.json.
func (m *Manager) SaveSession(state *SessionState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil session state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	path := filepath.Join(dir, sessionFile)
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // session history is not a secret
		return fmt.Errorf("writing session state: %w", err)
	}

	return nil
}

// ClearSession removes the session state file.
// This resets the state so the next chat invocation starts a new conversation.
// If overrideDir is non-empty, it is used instead of the default ~/.patchbay/
// location. Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearSession(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, sessionFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing session state: %w", err)
	}

	return nil
}
