// Package store persists presets in a local bbolt database. The repository
// contract is the only thing the rest of the gateway sees.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"mcpgw/internal/domain"
)

var presetsBucket = []byte("presets")

// ErrStoreClosed is returned by every operation after Close.
var ErrStoreClosed = errors.New("preset store is closed")

type presetEnvelope struct {
	Record  domain.PresetRecord
	Servers []domain.ServerBinding
}

// PresetStore is a bbolt-backed domain.PresetRepository. Records are stored
// JSON-encoded in one nested bucket per owner, keyed by slug.
type PresetStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

func Open(path string) (*PresetStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open preset db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(presetsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PresetStore{db: db, path: trimmed}, nil
}

func (s *PresetStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *PresetStore) view(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *PresetStore) update(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

func ownerBucket(tx *bolt.Tx, ownerID string, create bool) (*bolt.Bucket, error) {
	root := tx.Bucket(presetsBucket)
	if root == nil {
		return nil, fmt.Errorf("presets bucket missing")
	}
	if create {
		return root.CreateBucketIfNotExists([]byte(ownerID))
	}
	return root.Bucket([]byte(ownerID)), nil
}

func (s *PresetStore) GetBySlug(_ context.Context, ownerID, slug string) (*domain.Preset, error) {
	const op = "store.getBySlug"
	if ownerID == "" || slug == "" {
		return nil, domain.ValidationError(op, "slug", "owner id and slug are required")
	}

	var preset *domain.Preset
	err := s.view(func(tx *bolt.Tx) error {
		bucket, err := ownerBucket(tx, ownerID, false)
		if err != nil || bucket == nil {
			return err
		}
		raw := bucket.Get([]byte(slug))
		if raw == nil {
			return nil
		}
		var envelope presetEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("decode preset %s/%s: %w", ownerID, slug, err)
		}
		preset = domain.PresetFromRecord(envelope.Record, envelope.Servers)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if preset == nil {
		return nil, domain.E(domain.CodeNotFound, op,
			fmt.Sprintf("preset %q not found", slug), domain.ErrPresetNotFound)
	}
	return preset, nil
}

func (s *PresetStore) Save(_ context.Context, preset *domain.Preset) error {
	const op = "store.save"
	if preset == nil {
		return domain.ValidationError(op, "preset", "preset is required")
	}
	envelope := presetEnvelope{
		Record:  preset.Record(),
		Servers: preset.Servers(),
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode preset %s: %w", preset.Slug(), err)
	}
	return s.update(func(tx *bolt.Tx) error {
		bucket, err := ownerBucket(tx, preset.OwnerID(), true)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(preset.Slug()), raw)
	})
}

func (s *PresetStore) Delete(_ context.Context, ownerID, slug string) error {
	const op = "store.delete"
	if ownerID == "" || slug == "" {
		return domain.ValidationError(op, "slug", "owner id and slug are required")
	}
	return s.update(func(tx *bolt.Tx) error {
		bucket, err := ownerBucket(tx, ownerID, false)
		if err != nil {
			return err
		}
		if bucket == nil || bucket.Get([]byte(slug)) == nil {
			return domain.E(domain.CodeNotFound, op,
				fmt.Sprintf("preset %q not found", slug), domain.ErrPresetNotFound)
		}
		return bucket.Delete([]byte(slug))
	})
}

func (s *PresetStore) ListByOwner(_ context.Context, ownerID string) ([]*domain.Preset, error) {
	const op = "store.listByOwner"
	if ownerID == "" {
		return nil, domain.ValidationError(op, "ownerId", "owner id is required")
	}

	var presets []*domain.Preset
	err := s.view(func(tx *bolt.Tx) error {
		bucket, err := ownerBucket(tx, ownerID, false)
		if err != nil || bucket == nil {
			return err
		}
		return bucket.ForEach(func(_, value []byte) error {
			if value == nil {
				return nil
			}
			var envelope presetEnvelope
			if err := json.Unmarshal(value, &envelope); err != nil {
				return fmt.Errorf("decode preset for %s: %w", ownerID, err)
			}
			presets = append(presets, domain.PresetFromRecord(envelope.Record, envelope.Servers))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return presets, nil
}
