package consistency

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"cfsck/internal/blobstore"
	"cfsck/internal/configdb"
	"cfsck/internal/models"
)

// memStore is an in-memory blobstore.Store.
type memStore struct {
	mu         sync.Mutex
	blobs      map[string][]byte
	next       int
	listErr    error
	failDelete map[string]error
	rebuilds   int
	recalcs    int
}

func newMemStore(ids ...string) *memStore {
	s := &memStore{blobs: map[string][]byte{}, failDelete: map[string]error{}}
	for _, id := range ids {
		s.blobs[id] = []byte("content of " + id)
	}
	return s
}

func (s *memStore) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	ids := make([]string, 0, len(s.blobs))
	for id := range s.blobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) Save(_ context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("new/%03d", s.next)
	s.blobs[id] = data
	return id, nil
}

func (s *memStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failDelete[id]; err != nil {
		return err
	}
	delete(s.blobs, id)
	return nil
}

func (s *memStore) Rebuild(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuilds++
	return nil
}

func (s *memStore) Size(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[id]
	if !ok {
		return 0, blobstore.ErrNotFound
	}
	return int64(len(data)), nil
}

func (s *memStore) MediaType(_ context.Context, id string) (string, error) {
	if _, err := s.Size(context.Background(), id); err != nil {
		return "", err
	}
	return "text/plain; charset=utf-8", nil
}

func (s *memStore) RecalculateUsage(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recalcs++
	var used int64
	for _, data := range s.blobs {
		used += int64(len(data))
	}
	return used, nil
}

func (s *memStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[id]
	return ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

type memFactory map[int]*memStore

func (f memFactory) ForContext(_ context.Context, tenant models.Context) (blobstore.Store, error) {
	st, ok := f[tenant.ID]
	if !ok {
		return nil, errors.New("no filestore")
	}
	return st, nil
}

type repoint struct {
	oldID, newID string
	info         models.BlobInfo
	comment      string
}

// memIndex is an in-memory reference index. Failing ids leave the index
// unchanged, as a rolled back transaction would.
type memIndex struct {
	mu       sync.Mutex
	refs     map[int][]string
	listErr  error
	fail     map[string]error
	calls    []string
	repoints []repoint
	created  []*models.Infoitem
	admin    *models.User
}

func newMemIndex() *memIndex {
	return &memIndex{refs: map[int][]string{}, fail: map[string]error{}}
}

func (x *memIndex) ListBlobIDs(_ context.Context, tenant models.Context) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.listErr != nil {
		return nil, x.listErr
	}
	out := append([]string(nil), x.refs[tenant.ID]...)
	return out, nil
}

func (x *memIndex) RepointBlob(_ context.Context, tenant models.Context, oldID, newID string, info models.BlobInfo, comment string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls = append(x.calls, oldID)
	if err := x.fail[oldID]; err != nil {
		return err
	}
	refs := x.refs[tenant.ID]
	for i, id := range refs {
		if id == oldID {
			refs[i] = newID
		}
	}
	x.repoints = append(x.repoints, repoint{oldID: oldID, newID: newID, info: info, comment: comment})
	return nil
}

func (x *memIndex) DeleteByBlob(_ context.Context, tenant models.Context, blobID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls = append(x.calls, blobID)
	if err := x.fail[blobID]; err != nil {
		return err
	}
	kept := x.refs[tenant.ID][:0]
	for _, id := range x.refs[tenant.ID] {
		if id != blobID {
			kept = append(kept, id)
		}
	}
	x.refs[tenant.ID] = kept
	return nil
}

func (x *memIndex) CreateInfoitem(_ context.Context, tenant models.Context, item *models.Infoitem) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	blobID := item.Versions[0].BlobID
	x.calls = append(x.calls, blobID)
	if err := x.fail[blobID]; err != nil {
		return err
	}
	x.created = append(x.created, item)
	x.refs[tenant.ID] = append(x.refs[tenant.ID], blobID)
	return nil
}

func (x *memIndex) ContextAdmin(_ context.Context, tenant models.Context) (*models.User, error) {
	if x.admin == nil {
		return nil, fmt.Errorf("context %d: no admin", tenant.ID)
	}
	return x.admin, nil
}

// memDirectory serves contexts from a slice kept in ascending id order.
type memDirectory []models.Context

func (d memDirectory) GetContext(_ context.Context, id int) (*models.Context, error) {
	for _, c := range d {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, fmt.Errorf("context %d: %w", id, configdb.ErrNotFound)
}

func (d memDirectory) filter(match func(models.Context) bool) []models.Context {
	out := []models.Context{}
	for _, c := range d {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

func (d memDirectory) ListByFilestore(_ context.Context, id int) ([]models.Context, error) {
	out := d.filter(func(c models.Context) bool { return c.FilestoreID == id })
	if len(out) == 0 {
		return nil, fmt.Errorf("filestore %d: %w", id, configdb.ErrNotFound)
	}
	return out, nil
}

func (d memDirectory) ListByDatabase(_ context.Context, id int) ([]models.Context, error) {
	out := d.filter(func(c models.Context) bool { return c.DatabaseID == id })
	if len(out) == 0 {
		return nil, fmt.Errorf("database %d: %w", id, configdb.ErrNotFound)
	}
	return out, nil
}

func (d memDirectory) ListAll(context.Context) ([]models.Context, error) {
	return append([]models.Context(nil), d...), nil
}

// countingObserver records observer calls.
type countingObserver struct {
	mu          sync.Mutex
	divergences map[Kind]int
	repairs     map[string]int
	failures    map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{divergences: map[Kind]int{}, repairs: map[string]int{}, failures: map[string]int{}}
}

func (o *countingObserver) ObserveDivergences(kind Kind, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.divergences[kind] += count
}

func (o *countingObserver) ObserveRepair(kind Kind, action Action, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.repairs[string(kind)+"/"+string(action)+"/"+outcome]++
}

func (o *countingObserver) ObserveTenantFailure(stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[stage]++
}

// memUsage records persisted usage per context.
type memUsage struct {
	mu   sync.Mutex
	used map[int]int64
	err  error
}

func (u *memUsage) SetContextUsage(_ context.Context, contextID int, usedBytes int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	if u.used == nil {
		u.used = map[int]int64{}
	}
	u.used[contextID] = usedBytes
	return nil
}
