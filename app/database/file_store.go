package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const kvKeyPrefix = "distroapp:"

// ErrNoFileChannel is returned by backup operations when collections are not kept in files
var ErrNoFileChannel = errors.New("file storage is not available")

// WriteResult reports the outcome of a durable write
type WriteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FileStore persists named collections as pretty-printed JSON files in the data
// directory. Without a data directory every call goes to the key-value fallback.
type FileStore struct {
	dataDir    string
	backupsDir string
	kv         KeyValueStore
	logger     *zap.Logger
}

// NewFileStore creates a durable store. dataDir may be empty, in which case kv is used.
func NewFileStore(dataDir, backupsDir string, kv KeyValueStore, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		dataDir:    dataDir,
		backupsDir: backupsDir,
		kv:         kv,
		logger:     logger.Named("durable"),
	}
}

// HasFileChannel reports whether collections are written to the data directory
func (s *FileStore) HasFileChannel() bool {
	return s.dataDir != ""
}

// DataDir returns the collection file directory, empty in key-value mode
func (s *FileStore) DataDir() string {
	return s.dataDir
}

// Read loads a named collection. It returns false when the collection is absent,
// unreadable or not a JSON array.
func (s *FileStore) Read(ctx context.Context, name string) ([]json.RawMessage, bool) {
	if err := validateName(name); err != nil {
		s.logger.Warn("rejected collection read", zap.String("name", name), zap.Error(err))
		return nil, false
	}

	data, found, err := s.readRaw(ctx, name)
	if err != nil {
		s.logger.Warn("failed to read collection", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn("failed to parse collection", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	if items == nil {
		// a literal null is not data
		return nil, false
	}
	return items, true
}

func (s *FileStore) readRaw(ctx context.Context, name string) ([]byte, bool, error) {
	if !s.HasFileChannel() {
		if s.kv == nil {
			return nil, false, nil
		}
		return s.kv.Get(ctx, kvKeyPrefix+name)
	}

	data, err := os.ReadFile(s.pathFor(name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Write serializes value and replaces the named collection
func (s *FileStore) Write(ctx context.Context, name string, value any) WriteResult {
	if err := validateName(name); err != nil {
		return WriteResult{Error: err.Error()}
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode collection", zap.String("name", name), zap.Error(err))
		return WriteResult{Error: fmt.Sprintf("failed to encode %s: %v", name, err)}
	}

	if !s.HasFileChannel() {
		if s.kv == nil {
			return WriteResult{Error: "no durable storage available"}
		}
		if err := s.kv.Set(ctx, kvKeyPrefix+name, data); err != nil {
			s.logger.Error("failed to write collection", zap.String("name", name), zap.Error(err))
			return WriteResult{Error: fmt.Sprintf("failed to write %s: %v", name, err)}
		}
		return WriteResult{Success: true}
	}

	if err := writeFileAtomic(s.pathFor(name), data); err != nil {
		s.logger.Error("failed to write collection", zap.String("name", name), zap.Error(err))
		return WriteResult{Error: fmt.Sprintf("failed to write %s: %v", name, err)}
	}
	return WriteResult{Success: true}
}

func (s *FileStore) pathFor(name string) string {
	return filepath.Join(s.dataDir, name+".json")
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it over path
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// BackupInfo describes one backup folder
type BackupInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	Files     int       `json:"files"`
}

// CreateBackup copies every collection file into a new folder under the backups directory
func (s *FileStore) CreateBackup(label string) (BackupInfo, error) {
	if !s.HasFileChannel() || s.backupsDir == "" {
		return BackupInfo{}, ErrNoFileChannel
	}
	if label == "" {
		label = "manual"
	}
	if err := validateName(label); err != nil {
		return BackupInfo{}, err
	}

	now := time.Now().UTC()
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(now.Format("2006-01-02T15:04:05.000Z"))
	name := fmt.Sprintf("%s-%s", label, stamp)
	dest := filepath.Join(s.backupsDir, name)

	if err := os.MkdirAll(dest, 0755); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	copied, err := copyJSONFiles(s.dataDir, dest)
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to create backup: %w", err)
	}

	s.logger.Info("backup created", zap.String("path", dest), zap.Int("files", copied))
	return BackupInfo{Name: name, Path: dest, CreatedAt: now, Files: copied}, nil
}

// ListBackups returns the backup folders, newest first
func (s *FileStore) ListBackups() ([]BackupInfo, error) {
	if s.backupsDir == "" {
		return nil, ErrNoFileChannel
	}

	entries, err := os.ReadDir(s.backupsDir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dir := filepath.Join(s.backupsDir, entry.Name())
		files, _ := filepath.Glob(filepath.Join(dir, "*.json"))
		backups = append(backups, BackupInfo{
			Name:      entry.Name(),
			Path:      dir,
			CreatedAt: info.ModTime().UTC(),
			Files:     len(files),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// RestoreBackup copies a backup's files over the data directory, after first
// backing up the current files as "pre-restore".
func (s *FileStore) RestoreBackup(name string) error {
	if !s.HasFileChannel() || s.backupsDir == "" {
		return ErrNoFileChannel
	}
	if err := validateName(name); err != nil {
		return err
	}

	src := filepath.Join(s.backupsDir, name)
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return fmt.Errorf("backup %q not found", name)
	}

	if _, err := s.CreateBackup("pre-restore"); err != nil {
		return fmt.Errorf("failed to back up current data: %w", err)
	}

	restored, err := copyJSONFiles(src, s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	s.logger.Info("backup restored", zap.String("name", name), zap.Int("files", restored))
	return nil
}

func copyJSONFiles(srcDir, destDir string) (int, error) {
	entries, err := os.ReadDir(srcDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(srcDir, entry.Name()))
		if err != nil {
			return copied, err
		}
		if err := writeFileAtomic(filepath.Join(destDir, entry.Name()), data); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}
