package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	domrepo "FinCast/internal/domain/repository"
)

// FSArtifactStore persists named JSON artifacts under one directory.
// Writes go through a temp file and a rename so a reader never observes
// a half-written artifact.
type FSArtifactStore struct {
	dir string
}

// NewFSArtifactStore creates dir if needed and returns a store over it.
func NewFSArtifactStore(dir string) (*FSArtifactStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FSArtifactStore{dir: dir}, nil
}

func (s *FSArtifactStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Save marshals v and atomically replaces the named artifact.
func (s *FSArtifactStore) Save(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close artifact %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace artifact %s: %w", name, err)
	}
	return nil
}

// Load unmarshals the named artifact into dest.
func (s *FSArtifactStore) Load(name string, dest any) error {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the named artifact is present.
func (s *FSArtifactStore) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// ModTime returns when the named artifact was last written.
func (s *FSArtifactStore) ModTime(name string) (time.Time, error) {
	fi, err := os.Stat(s.path(name))
	if err != nil {
		return time.Time{}, fmt.Errorf("stat artifact %s: %w", name, err)
	}
	return fi.ModTime(), nil
}

var _ domrepo.ArtifactStore = (*FSArtifactStore)(nil)
