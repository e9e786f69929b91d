package consistency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfsck/internal/models"
)

type fixture struct {
	tenant models.Context
	store  *memStore
	docs   *memIndex
	atts   *memIndex
	obs    *countingObserver
	deps   Deps
	opts   Options
}

func newFixture(t *testing.T, blobs []string, docRefs []string, attRefs []string) *fixture {
	t.Helper()
	tenant := models.Context{ID: 7, FilestoreID: 1, DatabaseID: 1, Enabled: true}
	f := &fixture{
		tenant: tenant,
		store:  newMemStore(blobs...),
		docs:   newMemIndex(),
		atts:   newMemIndex(),
		obs:    newCountingObserver(),
	}
	f.docs.refs[tenant.ID] = append([]string(nil), docRefs...)
	f.atts.refs[tenant.ID] = append([]string(nil), attRefs...)
	f.deps = Deps{
		Directory:   memDirectory{tenant},
		Stores:      memFactory{tenant.ID: f.store},
		Documents:   f.docs,
		Attachments: f.atts,
	}
	f.opts = Options{Observer: f.obs}
	return f
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(f.deps, f.opts)
	require.NoError(t, err)
	return e
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(f.deps, f.opts)
	require.NoError(t, err)
	return s
}

func TestNewEngineRequiresDeps(t *testing.T) {
	_, err := NewEngine(Deps{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestCheckNoFalsePositives(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"}, []string{"A", "B"}, []string{"C"})
	div, err := f.engine(t).Check(context.Background(), f.tenant, Solvers{})
	require.NoError(t, err)
	assert.True(t, div.Empty())
	assert.Equal(t, 1, f.store.rebuilds, "store is rebuilt before listing")
	assert.Empty(t, f.obs.divergences)
}

func TestCheckComputesAllKinds(t *testing.T) {
	f := newFixture(t, []string{"A", "C", "D", "E"}, []string{"B", "A", "X"}, []string{"C", "Y", "X"})
	div, err := f.engine(t).Check(context.Background(), f.tenant, Solvers{})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "X"}, div.MissingDocuments)
	assert.Equal(t, []string{"X", "Y"}, div.MissingAttachments)
	assert.Equal(t, []string{"D", "E"}, div.OrphanedBlobs)
	assert.Equal(t, 2, f.obs.divergences[KindOrphanedBlob])
}

// A diff that removed present ids from the document set in place before
// joining it with the attachment set would report A and C as orphans.
func TestCheckOrphansUseReferenceSetsBeforeDiff(t *testing.T) {
	f := newFixture(t, []string{"A", "C", "D"}, []string{"A", "M"}, []string{"C", "A"})

	recorder := NewRecorder()
	div, err := f.engine(t).Check(context.Background(), f.tenant, Solvers{
		Documents: recorder,
		Blobs:     recorder,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, div.OrphanedBlobs)
	assert.Equal(t, []string{"M"}, div.MissingDocuments)
	assert.Equal(t, map[int][]string{7: {"D", "M"}}, recorder.Results())
}

type erringSolver struct{ calls int }

func (s *erringSolver) Solve(context.Context, Tenant, []string) error {
	s.calls++
	return errors.New("boom")
}

func TestCheckSolverErrorDoesNotStopOtherKinds(t *testing.T) {
	f := newFixture(t, []string{"D"}, []string{"M"}, []string{"N"})
	failing := &erringSolver{}
	recorder := NewRecorder()

	_, err := f.engine(t).Check(context.Background(), f.tenant, Solvers{
		Documents:   failing,
		Attachments: recorder,
		Blobs:       recorder,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, map[int][]string{7: {"D", "N"}}, recorder.Results())
}

func TestCheckSourceFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		breakSource func(f *fixture)
		source string
	}{
		{name: "filestore", breakSource: func(f *fixture) { f.store.listErr = boom }, source: "filestore"},
		{name: "infoitems", breakSource: func(f *fixture) { f.docs.listErr = boom }, source: "infoitems"},
		{name: "attachments", breakSource: func(f *fixture) { f.atts.listErr = boom }, source: "attachments"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, []string{"D"}, []string{"M"}, nil)
			tc.breakSource(f)
			recorder := NewRecorder()

			_, err := f.engine(t).Check(context.Background(), f.tenant, Solvers{Documents: recorder, Blobs: recorder})
			var srcErr *SourceError
			require.ErrorAs(t, err, &srcErr)
			assert.Equal(t, tc.source, srcErr.Source)
			assert.ErrorIs(t, err, boom)
			assert.Empty(t, recorder.Results(), "no solver runs after a read failure")
		})
	}
}

func TestCheckUnknownFilestore(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.deps.Stores = memFactory{}
	_, err := f.engine(t).Check(context.Background(), f.tenant, Solvers{})
	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "filestore", srcErr.Source)
}
