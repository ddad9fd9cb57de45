package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"esplit/internal/auth"
	"esplit/internal/jobs"
	"esplit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testUser uint = 7

type staticGate struct {
	user   *auth.Identity
	closed atomic.Bool
}

func (g *staticGate) Wait(context.Context) (*auth.Identity, error) {
	return g.user, nil
}

func (g *staticGate) Close() {
	g.closed.Store(true)
}

func signedIn() *staticGate {
	return &staticGate{user: &auth.Identity{UserID: testUser, Email: "u@example.com"}}
}

// memoryObjectStore stores objects in memory and reports progress per chunk.
type memoryObjectStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	uploads    int
	chunk      int
	failAfter  int64
	resolveErr error
	// hold, when set, parks Upload after the first chunk until released or
	// the context ends.
	hold chan struct{}
	held chan struct{}
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{
		objects:   make(map[string][]byte),
		chunk:     256 << 10,
		failAfter: -1,
	}
}

func (s *memoryObjectStore) Upload(ctx context.Context, path string, r io.Reader, size int64, _ string, progress func(int64)) error {
	s.mu.Lock()
	s.uploads++
	failAfter := s.failAfter
	hold, held := s.hold, s.held
	s.mu.Unlock()

	var buf bytes.Buffer
	chunk := make([]byte, s.chunk)
	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			sent += int64(n)
			progress(sent)
			if failAfter >= 0 && sent >= failAfter {
				return errors.New("connection reset by peer")
			}
			if hold != nil {
				close(held)
				select {
				case <-hold:
				case <-ctx.Done():
					return ctx.Err()
				}
				hold = nil
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if sent != size {
		return fmt.Errorf("short upload: %d of %d", sent, size)
	}

	s.mu.Lock()
	s.objects[path] = buf.Bytes()
	s.mu.Unlock()
	return nil
}

func (s *memoryObjectStore) ResolveRetrievalURL(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return "", s.resolveErr
	}
	if _, ok := s.objects[path]; !ok {
		return "", errors.New("no such object")
	}
	return "http://storage.test/" + path, nil
}

func (s *memoryObjectStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type outageStore struct {
	*jobs.MemoryStore
}

func (outageStore) Create(context.Context, *models.Job) error {
	return errors.New("document store unavailable")
}

type candidateFile struct {
	*Candidate
	released atomic.Bool
}

func newCandidate(name, contentType string, size int) *candidateFile {
	data := bytes.Repeat([]byte{0xAB}, size)
	cf := &candidateFile{}
	cf.Candidate = &Candidate{
		Name:        name,
		ContentType: contentType,
		Size:        int64(size),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
		Release: func() { cf.released.Store(true) },
	}
	return cf
}

type fixture struct {
	ws      *Workspace
	store   *memoryObjectStore
	jobs    *jobs.MemoryStore
	gate    *staticGate
	writer  *jobs.Writer
	nowTick atomic.Int64
}

func newFixture(t *testing.T, gate *staticGate, jobStore jobs.Store) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemoryObjectStore(),
		jobs:  jobs.NewMemoryStore(),
		gate:  gate,
	}
	if jobStore == nil {
		jobStore = f.jobs
	}
	f.writer = jobs.NewWriter(jobStore, nil)
	f.ws = NewWorkspace(testUser, gate, Deps{
		Validator: NewValidator(DefaultMaxBytes, nil),
		Channel:   NewChannel(f.store),
		Writer:    f.writer,
		Now: func() time.Time {
			return time.UnixMilli(1700000000000 + f.nowTick.Add(1))
		},
	})
	t.Cleanup(f.ws.Close)
	return f
}

func waitDone(t *testing.T, ws *Workspace) Snapshot {
	t.Helper()
	select {
	case <-ws.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not finish")
	}
	return ws.Snapshot()
}

// collect reads snapshots until a terminal one arrives.
func collect(ws *Workspace) (<-chan []Snapshot, func()) {
	ch, unsubscribe := ws.Subscribe()
	out := make(chan []Snapshot, 1)
	go func() {
		var seen []Snapshot
		for s := range ch {
			seen = append(seen, s)
			if s.Terminal() {
				break
			}
		}
		out <- seen
	}()
	return out, unsubscribe
}

func TestScenarioA_SuccessfulUploadCreatesJob(t *testing.T) {
	f := newFixture(t, signedIn(), nil)
	song := newCandidate("song.mp3", "audio/mpeg", 4<<20)

	require.NoError(t, f.ws.Select(song.Candidate))
	assert.Empty(t, f.ws.Snapshot().Error)

	seenCh, unsubscribe := collect(f.ws)
	defer unsubscribe()

	snap, err := f.ws.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUploading, snap.State)
	assert.Equal(t, "uploads/7/1700000000001-song.mp3", snap.Path)

	final := waitDone(t, f.ws)
	assert.Equal(t, StateSucceeded, final.State)
	assert.Equal(t, 100.0, final.Percent)
	assert.Equal(t, "Your file is now in the queue for processing!", final.Message)
	assert.Empty(t, final.Error)
	assert.Nil(t, final.Candidate, "candidate is cleared after the job is written")
	assert.True(t, song.released.Load())
	require.NotEmpty(t, final.JobID)

	job, err := f.jobs.Get(context.Background(), testUser, final.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, job.Status)
	assert.Equal(t, "song.mp3", job.OriginalFileName)
	assert.Equal(t, final.Path, job.StoragePath)
	assert.Equal(t, "http://storage.test/"+final.Path, job.DownloadURL)
	assert.Equal(t, 1, f.jobs.Len())

	seen := <-seenCh
	last := 0.0
	for _, s := range seen {
		assert.GreaterOrEqual(t, s.Percent, last, "progress must not decrease")
		if s.Percent == 100 {
			assert.NotEqual(t, StateUploading, s.State, "100 percent only once the transfer completed")
		}
		last = s.Percent
	}
	assert.Equal(t, StateSucceeded, seen[len(seen)-1].State)
}

func TestScenarioB_VideoRejected(t *testing.T) {
	f := newFixture(t, signedIn(), nil)
	movie := newCandidate("movie.mp4", "video/mp4", 1024)
	movie.Size = 10 << 20

	err := f.ws.Select(movie.Candidate)
	assert.ErrorIs(t, err, ErrInvalidType)

	snap := f.ws.Snapshot()
	assert.Nil(t, snap.Candidate)
	assert.Equal(t, Message(ErrInvalidType), snap.Error)
	assert.True(t, movie.released.Load())

	_, err = f.ws.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 0, f.store.uploads)
	assert.Equal(t, StateIdle, f.ws.Snapshot().State)
}

func TestScenarioC_TooLargeRejected(t *testing.T) {
	f := newFixture(t, signedIn(), nil)
	track := newCandidate("track.wav", "audio/wav", 16)
	track.Size = 30 << 20

	err := f.ws.Select(track.Candidate)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Nil(t, f.ws.Snapshot().Candidate)
	assert.Equal(t, Message(ErrTooLarge), f.ws.Snapshot().Error)
}

func TestRejectedFileClearsPreviousCandidate(t *testing.T) {
	f := newFixture(t, signedIn(), nil)
	good := newCandidate("good.mp3", "audio/mpeg", 10)
	require.NoError(t, f.ws.Select(good.Candidate))

	bad := newCandidate("bad.txt", "text/plain", 10)
	require.ErrorIs(t, f.ws.Select(bad.Candidate), ErrInvalidType)

	assert.Nil(t, f.ws.Snapshot().Candidate)
	assert.True(t, good.released.Load())
}

func TestScenarioD_NetworkDropKeepsCandidate(t *testing.T) {
	f := newFixture(t, signedIn(), nil)
	f.store.failAfter = 1 << 20
	song := newCandidate("song.mp3", "audio/mpeg", 4<<20)
	require.NoError(t, f.ws.Select(song.Candidate))

	_, err := f.ws.Start(context.Background())
	require.NoError(t, err)

	final := waitDone(t, f.ws)
	assert.Equal(t, StateFailed, final.State)
	assert.Equal(t, "UploadFailed", final.Reason)
	assert.Equal(t, Message(ErrUploadFailed), final.Error)
	assert.Empty(t, final.Message)
	assert.Less(t, final.Percent, 100.0)
	require.NotNil(t, final.Candidate, "candidate stays selected for retry")
	assert.Equal(t, "song.mp3", final.Candidate.Name)
	assert.False(t, song.released.Load())
	assert.Equal(t, 0, f.jobs.Len())

	// retry without selecting again
	f.store.mu.Lock()
	f.store.failAfter = -1
	f.store.mu.Unlock()

	_, err = f.ws.Start(context.Background())
	require.NoError(t, err)
	final = waitDone(t, f.ws)
	assert.Equal(t, StateSucceeded, final.State)
	assert.Equal(t, 1, f.jobs.Len())
}

func TestScenarioE_JobWriteFailureIsDistinct(t *testing.T) {
	f := newFixture(t, signedIn(), outageStore{jobs.NewMemoryStore()})
	song := newCandidate("song.mp3", "audio/mpeg", 1<<20)
	require.NoError(t, f.ws.Select(song.Candidate))

	_, err := f.ws.Start(context.Background())
	require.NoError(t, err)

	final := waitDone(t, f.ws)
	assert.Equal(t, StateFailed, final.State)
	assert.Equal(t, "JobCreationFailed", final.Reason)
	assert.Equal(t, Message(ErrJobCreationFailed), final.Error)
	assert.NotEqual(t, Message(ErrUploadFailed), final.Error)
	assert.Equal(t, 100.0, final.Percent)
	assert.Empty(t, final.JobID)
	assert.Equal(t, 1, f.store.count(), "uploaded object is not rolled back")
	assert.NotNil(t, final.Candidate)
}

func TestURLResolutionFailureCreatesNoJob(t *testing.T) {
	f := newFixture(t, signedIn(), nil)
	f.store.resolveErr = errors.New("presign failed")
	require.NoError(t, f.ws.Select(newCandidate("a.wav", "audio/wav", 1024).Candidate))

	_, err := f.ws.Start(context.Background())
	require.NoError(t, err)

	final := waitDone(t, f.ws)
	assert.Equal(t, StateFailed, final.State)
	assert.Equal(t, "URLResolutionFailed", final.Reason)
	assert.Equal(t, Message(ErrURLResolutionFailed), final.Error)
	assert.Equal(t, 0, f.jobs.Len())
	assert.Equal(t, 1, f.store.count())
}

func TestStartNotReady(t *testing.T) {
	t.Run("no candidate", func(t *testing.T) {
		f := newFixture(t, signedIn(), nil)
		_, err := f.ws.Start(context.Background())
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Equal(t, Message(ErrNotReady), f.ws.Snapshot().Error)
	})

	t.Run("signed out", func(t *testing.T) {
		f := newFixture(t, &staticGate{}, nil)
		require.NoError(t, f.ws.Select(newCandidate("a.wav", "audio/wav", 10).Candidate))
		_, err := f.ws.Start(context.Background())
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Equal(t, 0, f.store.uploads)
		assert.NotNil(t, f.ws.Snapshot().Candidate)
	})
}

func holdingFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, signedIn(), nil)
	f.store.hold = make(chan struct{})
	f.store.held = make(chan struct{})
	require.NoError(t, f.ws.Select(newCandidate("song.mp3", "audio/mpeg", 1<<20).Candidate))
	_, err := f.ws.Start(context.Background())
	require.NoError(t, err)

	select {
	case <-f.store.held:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not start")
	}
	return f
}

func TestSingleCycleAtATime(t *testing.T) {
	f := holdingFixture(t)

	_, err := f.ws.Start(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	other := newCandidate("other.mp3", "audio/mpeg", 10)
	assert.ErrorIs(t, f.ws.Select(other.Candidate), ErrBusy)
	assert.True(t, other.released.Load())

	close(f.store.hold)
	assert.Equal(t, StateSucceeded, waitDone(t, f.ws).State)
}

func TestCancelInFlightTransfer(t *testing.T) {
	f := holdingFixture(t)

	require.NoError(t, f.ws.Cancel())

	final := waitDone(t, f.ws)
	assert.Equal(t, StateFailed, final.State)
	assert.Equal(t, "UploadCancelled", final.Reason)
	assert.Equal(t, Message(ErrUploadCancelled), final.Error)
	assert.NotNil(t, final.Candidate)
	assert.Equal(t, 0, f.store.count(), "no object committed on cancel")
	assert.Equal(t, 0, f.jobs.Len())

	assert.ErrorIs(t, f.ws.Cancel(), ErrNotCancellable)
}

// committingStore stores the object, then parks until released before
// reporting success, ignoring any cancellation in between.
type committingStore struct {
	*memoryObjectStore
	stored  chan struct{}
	release chan struct{}
}

func (s *committingStore) Upload(_ context.Context, path string, r io.Reader, size int64, contentType string, progress func(int64)) error {
	if err := s.memoryObjectStore.Upload(context.Background(), path, r, size, contentType, progress); err != nil {
		return err
	}
	close(s.stored)
	<-s.release
	return nil
}

func TestCancelAcknowledgedAfterCommitCreatesNoJob(t *testing.T) {
	store := &committingStore{
		memoryObjectStore: newMemoryObjectStore(),
		stored:            make(chan struct{}),
		release:           make(chan struct{}),
	}
	jobStore := jobs.NewMemoryStore()
	ws := NewWorkspace(testUser, signedIn(), Deps{
		Channel: NewChannel(store),
		Writer:  jobs.NewWriter(jobStore, nil),
	})
	t.Cleanup(ws.Close)

	require.NoError(t, ws.Select(newCandidate("late.wav", "audio/wav", 1024).Candidate))
	_, err := ws.Start(context.Background())
	require.NoError(t, err)

	<-store.stored
	require.NoError(t, ws.Cancel())
	close(store.release)

	final := waitDone(t, ws)
	assert.Equal(t, StateFailed, final.State)
	assert.Equal(t, "UploadCancelled", final.Reason)
	assert.Empty(t, final.JobID)
	assert.Equal(t, 0, jobStore.Len(), "an acknowledged cancel never creates a job")
	assert.NotNil(t, final.Candidate)
}

func TestCancelWhenIdle(t *testing.T) {
	f := newFixture(t, signedIn(), nil)
	assert.ErrorIs(t, f.ws.Cancel(), ErrNotCancellable)
}

func TestStatusLineIsLastWriteWins(t *testing.T) {
	f := newFixture(t, signedIn(), nil)

	require.ErrorIs(t, f.ws.Select(newCandidate("x.mp4", "video/mp4", 10).Candidate), ErrInvalidType)
	assert.NotEmpty(t, f.ws.Snapshot().Error)

	require.NoError(t, f.ws.Select(newCandidate("x.mp3", "audio/mpeg", 10).Candidate))
	snap := f.ws.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.Message)

	_, err := f.ws.Start(context.Background())
	require.NoError(t, err)
	snap = waitDone(t, f.ws)
	assert.NotEmpty(t, snap.Message)
	assert.Empty(t, snap.Error)

	require.ErrorIs(t, f.ws.Select(newCandidate("y.mp4", "video/mp4", 10).Candidate), ErrInvalidType)
	snap = f.ws.Snapshot()
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, snap.Message)
}

func TestCloseAbortsTransferAndReleases(t *testing.T) {
	f := holdingFixture(t)

	ch, _ := f.ws.Subscribe()
	f.ws.Close()

	for range ch {
	}
	assert.True(t, f.gate.closed.Load())
	assert.Equal(t, 0, f.store.count())

	_, err := f.ws.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRegistry(t *testing.T) {
	store := newMemoryObjectStore()
	var gates []*staticGate
	reg := NewRegistry(func(userID uint) Gate {
		g := &staticGate{user: &auth.Identity{UserID: userID}}
		gates = append(gates, g)
		return g
	}, Deps{
		Channel: NewChannel(store),
		Writer:  jobs.NewWriter(jobs.NewMemoryStore(), nil),
	})

	a := reg.Get(1)
	assert.Same(t, a, reg.Get(1))
	b := reg.Get(2)
	assert.NotSame(t, a, b)
	require.Len(t, gates, 2)

	reg.Release(1)
	assert.True(t, gates[0].closed.Load())
	assert.NotSame(t, a, reg.Get(1))

	reg.Close()
	for _, g := range gates {
		assert.True(t, g.closed.Load())
	}
	assert.Nil(t, reg.Get(3))
}
