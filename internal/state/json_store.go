package state

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/schaermu/mtime-rewind/internal/fingerprint"
)

// JSONStore keeps the snapshot in a checksummed JSON document.
type JSONStore struct {
	root   string
	path   string
	logger *slog.Logger
}

// document is the on-disk layout. Files is a map so the encoding does not
// depend on insertion order; encoding/json sorts map keys.
//
// JSON strings cannot carry invalid UTF-8, so paths that are not valid UTF-8
// live in RawFiles keyed by their base64 encoding.
type document struct {
	SchemaVersion int                  `json:"schema_version"`
	Algorithm     string               `json:"algorithm"`
	Root          string               `json:"root"`
	CreatedAt     string               `json:"created_at"`
	Checksum      string               `json:"checksum,omitempty"`
	Files         map[string]fileEntry `json:"files"`
	RawFiles      map[string]fileEntry `json:"raw_files,omitempty"`
}

type fileEntry struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	MtimeSec    int64                   `json:"mtime_sec"`
	MtimeNsec   int64                   `json:"mtime_nsec"`
}

// NewJSONStore creates a JSON state store for name under root.
func NewJSONStore(root, name string, logger *slog.Logger) *JSONStore {
	return &JSONStore{
		root:   root,
		path:   filepath.Join(root, name),
		logger: logger.With("component", "json_state_store"),
	}
}

// Path returns the state file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads and verifies the state file.
func (s *JSONStore) Load(_ context.Context) (Snapshot, error) {
	s.logger.Debug("loading state", "path", s.path)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, corrupt(s.path, err)
	}

	switch {
	case doc.SchemaVersion == 0 || doc.Files == nil:
		return nil, corrupt(s.path, errors.New("not a state document"))
	case doc.SchemaVersion > CurrentSchemaVersion:
		return nil, fmt.Errorf("%w: %s: schema version %d", ErrUnsupportedVersion, s.path, doc.SchemaVersion)
	case doc.Algorithm != fingerprint.Algorithm:
		return nil, fmt.Errorf("%w: %s: fingerprint algorithm %q", ErrUnsupportedVersion, s.path, doc.Algorithm)
	}

	expected := doc.Checksum
	actual, err := checksum(doc)
	if err != nil {
		return nil, fmt.Errorf("compute state checksum: %w", err)
	}
	if expected != actual {
		s.logger.Error("state checksum mismatch", "expected", expected, "actual", actual)
		return nil, corrupt(s.path, errors.New("checksum mismatch"))
	}

	warnOnRootMismatch(s.logger, doc.Root, s.root)

	snap := make(Snapshot, len(doc.Files)+len(doc.RawFiles))
	for p, entry := range doc.Files {
		if err := s.decodeEntry(snap, p, entry); err != nil {
			return nil, err
		}
	}
	for key, entry := range doc.RawFiles {
		raw, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			return nil, corrupt(s.path, fmt.Errorf("raw path %q: %w", key, err))
		}
		if utf8.Valid(raw) {
			return nil, corrupt(s.path, fmt.Errorf("raw path %q is valid UTF-8", key))
		}
		if err := s.decodeEntry(snap, string(raw), entry); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("loaded state", "files", len(snap))
	return snap, nil
}

func (s *JSONStore) decodeEntry(snap Snapshot, p string, entry fileEntry) error {
	if err := validateRelPath(p); err != nil {
		return corrupt(s.path, err)
	}
	mtime, err := decodeMtime(entry.MtimeSec, entry.MtimeNsec)
	if err != nil {
		return corrupt(s.path, fmt.Errorf("%q: %w", p, err))
	}
	snap[p] = FileRecord{Path: p, Fingerprint: entry.Fingerprint, Mtime: mtime}
	return nil
}

// Save writes snap, replacing the previous state file atomically.
func (s *JSONStore) Save(_ context.Context, snap Snapshot) error {
	doc := document{
		SchemaVersion: CurrentSchemaVersion,
		Algorithm:     fingerprint.Algorithm,
		Root:          s.root,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		Files:         make(map[string]fileEntry, len(snap)),
	}
	for p, rec := range snap {
		sec, nsec := encodeMtime(rec.Mtime)
		entry := fileEntry{
			Fingerprint: rec.Fingerprint,
			MtimeSec:    sec,
			MtimeNsec:   nsec,
		}
		if utf8.ValidString(p) {
			doc.Files[p] = entry
			continue
		}
		if doc.RawFiles == nil {
			doc.RawFiles = make(map[string]fileEntry)
		}
		doc.RawFiles[base64.StdEncoding.EncodeToString([]byte(p))] = entry
	}

	sum, err := checksum(doc)
	if err != nil {
		return fmt.Errorf("marshal state for checksum: %w", err)
	}
	doc.Checksum = sum

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	s.logger.Debug("saved state", "path", s.path, "files", len(snap))
	return nil
}

// checksum hashes the document with its checksum field cleared.
func checksum(doc document) (string, error) {
	doc.Checksum = ""
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
