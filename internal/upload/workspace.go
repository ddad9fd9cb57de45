// internal/upload/workspace.go
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"esplit/internal/auth"
	"esplit/internal/jobs"
	"esplit/internal/logger"
	"esplit/internal/models"

	"github.com/rs/zerolog"
)

// Gate reports the signed-in identity of the workspace owner.
type Gate interface {
	Wait(ctx context.Context) (*auth.Identity, error)
	Close()
}

type JobWriter interface {
	Create(ctx context.Context, sub jobs.Submission) (*models.Job, error)
}

// Status is the single user-facing status line. Message and Error are never
// both set; the last write wins.
type Status struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type CandidateInfo struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Snapshot struct {
	Progress
	Status
	Candidate *CandidateInfo `json:"candidate,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
}

// Terminal reports whether the snapshot shows a finished cycle.
func (s Snapshot) Terminal() bool {
	return s.State == StateSucceeded || s.State == StateFailed
}

type Deps struct {
	Validator *Validator
	Channel   *Channel
	Writer    JobWriter
	// FinishTimeout bounds URL resolution and the job write, which run after
	// the transfer and are not cancellable by the user.
	FinishTimeout time.Duration
	Now           func() time.Time
}

func (d *Deps) defaults() {
	if d.Validator == nil {
		d.Validator = NewValidator(DefaultMaxBytes, nil)
	}
	if d.FinishTimeout <= 0 {
		d.FinishTimeout = 30 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// Workspace owns one user's candidate file and upload session. At most one
// cycle runs at a time.
type Workspace struct {
	userID uint
	gate   Gate
	deps   Deps
	log    zerolog.Logger

	mu        sync.Mutex
	machine   *Machine
	candidate *Candidate
	status    Status
	jobID     string
	cancel    context.CancelCauseFunc
	done      chan struct{}
	subs      map[uint64]chan Snapshot
	nextSub   uint64
	closed    bool
}

func NewWorkspace(userID uint, gate Gate, deps Deps) *Workspace {
	deps.defaults()
	done := make(chan struct{})
	close(done)
	return &Workspace{
		userID:  userID,
		gate:    gate,
		deps:    deps,
		log:     logger.With().Uint("user_id", userID).Logger(),
		machine: NewMachine(),
		done:    done,
		subs:    make(map[uint64]chan Snapshot),
	}
}

// Select validates c and makes it the current candidate. A rejected file
// also clears any previously selected one. Select takes ownership of c.
func (w *Workspace) Select(c *Candidate) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		c.release()
		return ErrNotReady
	}
	if w.machine.InFlight() {
		c.release()
		return ErrBusy
	}

	err := w.deps.Validator.Validate(c)
	CandidatesTotal.WithLabelValues(candidateLabel(err)).Inc()

	w.candidate.release()
	w.candidate = nil
	w.jobID = ""
	w.machine.Reset()

	if err != nil {
		c.release()
		w.setError(err)
		w.publish()
		return err
	}

	w.candidate = c
	w.status = Status{}
	w.publish()

	w.log.Debug().Str("file", c.Name).Int64("size", c.Size).Msg("candidate selected")
	return nil
}

// Start launches a transfer of the current candidate. It waits, bounded by
// ctx, for the session gate to settle and fails with ErrNotReady when there
// is no candidate or no signed-in user.
func (w *Workspace) Start(ctx context.Context) (Snapshot, error) {
	user, err := w.gate.Wait(ctx)
	if err != nil {
		user = nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.snapshotLocked(), ErrNotReady
	}
	if w.machine.InFlight() {
		return w.snapshotLocked(), ErrBusy
	}
	if w.candidate == nil || user == nil || user.UserID != w.userID {
		w.setError(ErrNotReady)
		w.publish()
		return w.snapshotLocked(), ErrNotReady
	}

	c := w.candidate
	dst := DestinationPath(user.UserID, w.deps.Now(), c.Name)
	w.machine.Begin(dst, c.Size)
	w.status = Status{}
	w.jobID = ""

	runCtx, cancel := context.WithCancelCause(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	UploadsInFlight.Inc()

	go w.run(runCtx, c, dst, w.done)

	w.publish()
	return w.snapshotLocked(), nil
}

func (w *Workspace) run(ctx context.Context, c *Candidate, dst string, done chan struct{}) {
	defer close(done)
	start := time.Now()
	log := w.log.With().Str("path", dst).Logger()

	var outcome error
	defer func() {
		UploadsInFlight.Dec()
		UploadsTotal.WithLabelValues(outcomeLabel(outcome)).Inc()
		UploadDuration.Observe(time.Since(start).Seconds())
	}()

	err := w.deps.Channel.Transfer(ctx, dst, c, func(transferred int64) {
		w.apply(func(m *Machine) bool { return m.Progress(transferred, c.Size) })
	})

	// The outcome is settled under the lock, so a Cancel that returned nil
	// always ends the cycle as cancelled, even if the store had already
	// committed the object. Stored objects are never removed.
	w.mu.Lock()
	if err == nil && errors.Is(context.Cause(ctx), ErrUploadCancelled) {
		err = ErrUploadCancelled
	}
	w.cancel(nil)
	w.cancel = nil
	if err != nil {
		if w.machine.TransferFailed(err) {
			w.setError(w.machine.Reason())
			w.publish()
		}
		outcome = w.machine.Reason()
		w.mu.Unlock()
		log.Warn().Err(err).Msg("transfer failed")
		return
	}
	if w.machine.TransferSucceeded() {
		w.publish()
	}
	w.mu.Unlock()
	UploadedBytesTotal.Add(float64(c.Size))

	finishCtx, cancel := context.WithTimeout(context.Background(), w.deps.FinishTimeout)
	defer cancel()

	url, err := w.deps.Channel.Resolve(finishCtx, dst)
	if err != nil {
		outcome = w.fail(func(m *Machine) bool { return m.ResolutionFailed(err) })
		log.Error().Err(err).Msg("stored object has no retrieval url")
		return
	}

	w.mu.Lock()
	w.machine.Resolved()
	w.setMessage("Upload complete! Creating processing job...")
	w.publish()
	w.mu.Unlock()

	job, err := w.deps.Writer.Create(finishCtx, jobs.Submission{
		UserID:           w.userID,
		OriginalFileName: c.Name,
		StoragePath:      dst,
		DownloadURL:      url,
	})
	if err != nil {
		outcome = w.fail(func(m *Machine) bool { return m.WriteFailed(err) })
		log.Error().Err(err).Msg("object stored but job was not queued")
		return
	}

	w.mu.Lock()
	w.machine.Written()
	w.jobID = job.JobID
	w.setMessage("Your file is now in the queue for processing!")
	if w.candidate == c {
		w.candidate = nil
	}
	c.release()
	w.publish()
	w.mu.Unlock()

	log.Info().Str("job_id", job.JobID).Dur("elapsed", time.Since(start)).Msg("upload queued for processing")
}

func (w *Workspace) apply(event func(*Machine) bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if event(w.machine) {
		w.publish()
	}
}

// fail applies a failing event and reports the machine's reason. The
// candidate is kept so the user can retry without selecting it again.
func (w *Workspace) fail(event func(*Machine) bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !event(w.machine) {
		return w.machine.Reason()
	}
	w.setError(w.machine.Reason())
	w.publish()
	return w.machine.Reason()
}

// Cancel aborts an in-flight transfer. Once the object is stored the cycle
// can no longer be cancelled.
func (w *Workspace) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.machine.State() != StateUploading || w.cancel == nil {
		return ErrNotCancellable
	}
	w.cancel(ErrUploadCancelled)
	return nil
}

// Done is closed when the current cycle, if any, has finished.
func (w *Workspace) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Subscribe returns a channel that always holds the latest snapshot;
// intermediate snapshots are dropped for slow readers. The channel is closed
// by the returned function or when the workspace closes.
func (w *Workspace) Subscribe() (<-chan Snapshot, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan Snapshot, 1)
	ch <- w.snapshotLocked()
	if w.closed {
		close(ch)
		return ch, func() {}
	}

	w.nextSub++
	id := w.nextSub
	w.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if sub, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(sub)
			}
		})
	}
}

// Close cancels any transfer, waits for the cycle to end and releases the
// candidate, subscribers and session gate.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.cancel != nil {
		w.cancel(ErrUploadCancelled)
	}
	done := w.done
	w.mu.Unlock()

	<-done

	w.mu.Lock()
	w.candidate.release()
	w.candidate = nil
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
	w.mu.Unlock()

	w.gate.Close()
}

func (w *Workspace) setError(err error) {
	w.status = Status{Error: Message(err)}
}

func (w *Workspace) setMessage(msg string) {
	w.status = Status{Message: msg}
}

func (w *Workspace) snapshotLocked() Snapshot {
	s := Snapshot{
		Progress: w.machine.Snapshot(),
		Status:   w.status,
		JobID:    w.jobID,
	}
	if reason := w.machine.Reason(); reason != nil && w.machine.State() == StateFailed {
		s.Reason = ReasonCode(reason)
	}
	if w.candidate != nil {
		s.Candidate = &CandidateInfo{
			Name:        w.candidate.Name,
			ContentType: w.candidate.ContentType,
			Size:        w.candidate.Size,
		}
	}
	return s
}

func (w *Workspace) publish() {
	snap := w.snapshotLocked()
	for _, ch := range w.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// ReasonCode maps a failure to its stable machine-readable code.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidType):
		return "InvalidType"
	case errors.Is(err, ErrTooLarge):
		return "TooLarge"
	case errors.Is(err, ErrNotReady):
		return "NotReady"
	case errors.Is(err, ErrUploadCancelled):
		return "UploadCancelled"
	case errors.Is(err, ErrUploadFailed):
		return "UploadFailed"
	case errors.Is(err, ErrURLResolutionFailed):
		return "URLResolutionFailed"
	case errors.Is(err, ErrJobCreationFailed):
		return "JobCreationFailed"
	default:
		return fmt.Sprintf("Unknown(%v)", err)
	}
}
