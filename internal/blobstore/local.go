package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"gopkg.in/yaml.v3"
)

const (
	stateFileName    = ".state.yml"
	lockFileName     = ".state.lock"
	tmpDirName       = ".tmp"
	defaultLockWait  = 10 * time.Second
	lockPollInterval = 20 * time.Millisecond
)

// LocalStore keeps one context's blobs in a directory tree below
// <filestore root>/<context id>_ctx_store. The .state.yml index mirrors the
// tree and is recreated by Rebuild.
type LocalStore struct {
	root     string
	logger   *slog.Logger
	lockWait time.Duration

	mu sync.Mutex
}

type localState struct {
	UpdatedAt time.Time `yaml:"updated_at"`
	UsedBytes int64     `yaml:"used_bytes"`
	Entries   []string  `yaml:"entries"`
}

// NewLocalStore opens (and creates) the context directory below fsRoot.
func NewLocalStore(fsRoot string, contextID int, logger *slog.Logger) (*LocalStore, error) {
	fsRoot = strings.TrimSpace(fsRoot)
	if fsRoot == "" {
		return nil, fmt.Errorf("local filestore root is required")
	}
	abs, err := filepath.Abs(fsRoot)
	if err != nil {
		return nil, err
	}
	root := filepath.Join(abs, contextStoreDir(contextID))
	if err := os.MkdirAll(filepath.Join(root, tmpDirName), 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStore{
		root:     root,
		logger:   logger.With("context_id", contextID),
		lockWait: defaultLockWait,
	}, nil
}

// Root returns the context directory.
func (s *LocalStore) Root() string {
	return s.root
}

// List returns the ids recorded in the state index, building the index
// first when it does not exist yet.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.readState()
	if errors.Is(err, os.ErrNotExist) {
		st, err = s.rebuildLocked(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, len(st.Entries))
	copy(out, st.Entries)
	return out, nil
}

// Save streams r into a fresh blob and returns its id.
func (s *LocalStore) Save(ctx context.Context, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), "save-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", err
	}

	id := newBlobID()
	dst := filepath.Join(s.root, filepath.FromSlash(id))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return "", err
	}

	err = s.updateState(ctx, func(st *localState) {
		st.Entries = insertSorted(st.Entries, id)
		st.UsedBytes += n
	})
	if err != nil {
		return "", fmt.Errorf("record blob %s: %w", id, err)
	}
	return id, nil
}

// Open returns a reader for the blob content.
func (s *LocalStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	return f, err
}

// Delete removes a blob. Missing files are ignored.
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(id)
	if err != nil {
		return err
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	clean, _ := cleanBlobID(id)
	return s.updateState(ctx, func(st *localState) {
		if removed := removeSorted(&st.Entries, clean); removed {
			st.UsedBytes -= size
			if st.UsedBytes < 0 {
				st.UsedBytes = 0
			}
		}
	})
}

// Rebuild walks the context directory and rewrites the state index.
func (s *LocalStore) Rebuild(ctx context.Context) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := s.rebuildLocked(ctx)
	if err != nil {
		return err
	}
	s.logger.Debug("blob store index rebuilt", "entries", len(st.Entries), "used", humanize.IBytes(uint64(st.UsedBytes)))
	return nil
}

// Size returns the stored size of a blob.
func (s *LocalStore) Size(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := s.path(id)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// MediaType sniffs the blob content.
func (s *LocalStore) MediaType(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.path(id)
	if err != nil {
		return "", err
	}
	mt, err := mimetype.DetectFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return mt.String(), nil
}

// RecalculateUsage walks the tree and stores the summed size in the index.
func (s *LocalStore) RecalculateUsage(ctx context.Context) (int64, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	_, used, err := s.walk(ctx)
	if err != nil {
		return 0, err
	}
	st, err := s.readState()
	if errors.Is(err, os.ErrNotExist) {
		st, err = &localState{}, nil
	}
	if err != nil {
		return 0, err
	}
	st.UsedBytes = used
	if err := s.writeState(st); err != nil {
		return 0, err
	}
	s.logger.Info("usage recalculated", "used", humanize.IBytes(uint64(used)))
	return used, nil
}

func (s *LocalStore) rebuildLocked(ctx context.Context) (*localState, error) {
	entries, used, err := s.walk(ctx)
	if err != nil {
		return nil, err
	}
	st := &localState{Entries: entries, UsedBytes: used}
	if err := s.writeState(st); err != nil {
		return nil, err
	}
	return st, nil
}

// walk returns the sorted blob ids and their summed size.
func (s *LocalStore) walk(ctx context.Context) ([]string, int64, error) {
	entries := []string{}
	var used int64
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == s.root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		entries = append(entries, filepath.ToSlash(rel))
		used += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Strings(entries)
	return entries, used, nil
}

func (s *LocalStore) updateState(ctx context.Context, fn func(st *localState)) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := s.readState()
	if errors.Is(err, os.ErrNotExist) {
		// No index yet; a walk already reflects the change.
		_, err = s.rebuildLocked(ctx)
		return err
	}
	if err != nil {
		return err
	}
	fn(st)
	return s.writeState(st)
}

func (s *LocalStore) readState() (*localState, error) {
	data, err := os.ReadFile(filepath.Join(s.root, stateFileName))
	if err != nil {
		return nil, err
	}
	var st localState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", stateFileName, err)
	}
	if st.Entries == nil {
		st.Entries = []string{}
	}
	return &st, nil
}

func (s *LocalStore) writeState(st *localState) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), "state-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.root, stateFileName))
}

// lock serializes index access within the process and, through an advisory
// lock on .state.lock, across processes sharing the filestore. The file itself
// stays in place; a lock left by a dead process is released by the OS.
func (s *LocalStore) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	lockPath := filepath.Join(s.root, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	fail := func(err error) (func(), error) {
		_ = f.Close()
		s.mu.Unlock()
		return nil, err
	}

	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := tryLockFile(f)
		if err != nil {
			return fail(fmt.Errorf("lock %s: %w", lockPath, err))
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fail(fmt.Errorf("%s: %w", lockPath, ErrLocked))
		}
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0)
	}
	return func() {
		_ = unlockFile(f)
		_ = f.Close()
		s.mu.Unlock()
	}, nil
}

func (s *LocalStore) path(id string) (string, error) {
	clean, err := cleanBlobID(id)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(clean, ".") {
		return "", fmt.Errorf("invalid blob id: %q", id)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func insertSorted(list []string, id string) []string {
	i := sort.SearchStrings(list, id)
	if i < len(list) && list[i] == id {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = id
	return list
}

func removeSorted(list *[]string, id string) bool {
	i := sort.SearchStrings(*list, id)
	if i >= len(*list) || (*list)[i] != id {
		return false
	}
	*list = append((*list)[:i], (*list)[i+1:]...)
	return true
}
