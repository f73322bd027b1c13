// Package attestation persists the legal disclaimer decision for the
// workspace. The on-disk format is a one-line JSON object {"accepted": bool}
// at a configurable path; a missing or corrupt file reads as unknown.
package attestation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/primarycredit/workspace/pkg/contracts"
)

type payload struct {
	Accepted *bool `json:"accepted"`
}

// FileStore is the file-backed implementation used by the server.
type FileStore struct {
	path string
}

// NewFileStore creates a store persisting to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Read returns the persisted decision, or unknown when the file is missing,
// unreadable, or does not carry a boolean "accepted" field.
func (s *FileStore) Read() contracts.AttestationDecision {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return contracts.AttestationUnknown
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil || p.Accepted == nil {
		return contracts.AttestationUnknown
	}
	if *p.Accepted {
		return contracts.AttestationAccepted
	}
	return contracts.AttestationDeclined
}

// Write persists the decision, creating parent directories as needed.
func (s *FileStore) Write(accepted bool) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create attestation dir: %w", err)
	}
	raw, err := json.Marshal(payload{Accepted: &accepted})
	if err != nil {
		return fmt.Errorf("encode attestation: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write attestation: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory store handy for tests.
type MemoryStore struct {
	mu       sync.Mutex
	decision contracts.AttestationDecision
}

// NewMemoryStore creates a store seeded with an initial decision.
func NewMemoryStore(initial contracts.AttestationDecision) *MemoryStore {
	return &MemoryStore{decision: initial}
}

func (s *MemoryStore) Read() contracts.AttestationDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decision
}

func (s *MemoryStore) Write(accepted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accepted {
		s.decision = contracts.AttestationAccepted
	} else {
		s.decision = contracts.AttestationDeclined
	}
	return nil
}
