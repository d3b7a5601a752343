package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	conversationFile = "conversation.json"
)

// ConversationState is the persisted conversation identity the relay passes
// to the hosted LLM API so replies continue the same thread across restarts.
type ConversationState struct {
	// ConversationID is the hosted conversation the relay is continuing.
	ConversationID string `json:"conversation_id"`

	// UpdatedAt is when the state was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// LoadConversationState loads conversation.json from the target
// .computercraft/ directory. Returns nil, nil if no state exists yet.
// If overrideDir is non-empty, it is used instead of the default location.
func (m *Manager) LoadConversationState(overrideDir string) (*ConversationState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, conversationFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading conversation state: %w", err)
	}

	state := &ConversationState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing conversation state: %w", err)
	}

	return state, nil
}

// SaveConversationState persists the conversation state to the target
// .computercraft/conversation.json.
func (m *Manager) SaveConversationState(state *ConversationState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil conversation state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling conversation state: %w", err)
	}

	path := filepath.Join(dir, conversationFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing conversation state: %w", err)
	}

	return nil
}

// ClearConversationState removes the stored conversation state, if any.
func (m *Manager) ClearConversationState(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(dir, conversationFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing conversation state: %w", err)
	}

	return nil
}
