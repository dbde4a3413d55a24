package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

const (
	fileStoreVersionV1 = "1"
	snapshotFileName   = "installations.json"
)

var errEmptyStorePath = errors.New("lifecycle: snapshot store path is empty")

// Store persists installation snapshots. Snapshots never carry process
// handles; reloaded entries are forced back to installed by the manager.
type Store interface {
	Load(ctx context.Context) ([]Installation, error)
	Save(ctx context.Context, installs []Installation) error
}

type fileStoreDocument struct {
	Version       string         `json:"version"`
	Installations []Installation `json:"installations"`
}

// FileStore persists installation snapshots in a local JSON file. This is
// the default store mandated by the persisted-state contract.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed snapshot store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultSnapshotPath returns the snapshot location under an install root.
func DefaultSnapshotPath(installRoot string) string {
	return filepath.Join(installRoot, snapshotFileName)
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load reads the snapshot. A missing file yields an empty slice.
func (s *FileStore) Load(ctx context.Context) ([]Installation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("lifecycle: file store is nil")
	}
	if strings.TrimSpace(s.path) == "" {
		return nil, errEmptyStorePath
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path is configured by the operator.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Installation{}, nil
		}
		return nil, fmt.Errorf("lifecycle: read snapshot: %w", err)
	}
	if len(data) == 0 {
		return []Installation{}, nil
	}

	var doc fileStoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lifecycle: decode snapshot: %w", err)
	}
	sortInstallations(doc.Installations)
	return doc.Installations, nil
}

// Save atomically replaces the snapshot.
func (s *FileStore) Save(ctx context.Context, installs []Installation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("lifecycle: file store is nil")
	}
	if strings.TrimSpace(s.path) == "" {
		return errEmptyStorePath
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	installs = slices.Clone(installs)
	sortInstallations(installs)

	doc := fileStoreDocument{
		Version:       fileStoreVersionV1,
		Installations: installs,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("lifecycle: encode snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("lifecycle: create snapshot dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("lifecycle: write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("lifecycle: replace snapshot: %w", err)
	}
	return nil
}

func sortInstallations(installs []Installation) {
	slices.SortFunc(installs, func(a, b Installation) int {
		return strings.Compare(a.BackendID, b.BackendID)
	})
}

var _ Store = (*FileStore)(nil)
