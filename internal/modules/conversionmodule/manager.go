package conversionmodule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mondominator/audiora/internal/database"
	"github.com/mondominator/audiora/internal/events"
	"github.com/mondominator/audiora/internal/utils"
)

// JobState is the lifecycle state of a conversion job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state is a final one.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is the ephemeral record of one conversion. Jobs never persist; a crash
// mid-conversion leaves only a temp-suffixed artifact that the scanner knows
// to skip.
type Job struct {
	ID          string     `json:"id"`
	AudiobookID uint       `json:"audiobook_id"`
	Directory   string     `json:"directory"`
	State       JobState   `json:"state"`
	Progress    int        `json:"progress"` // 0-100
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	lastProgressPub time.Time
}

var (
	// ErrJobActive is returned when the audiobook already has a live job.
	ErrJobActive = errors.New("conversion already active for this audiobook")
	// ErrDirectoryLocked is returned when another holder has the directory.
	ErrDirectoryLocked = errors.New("directory is locked by another job")
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("conversion job not found")
)

// JobManager runs long-lived conversion jobs, one per audiobook, each holding
// the directory lock for the audiobook's directory for its whole run.
type JobManager struct {
	logger        hclog.Logger
	db            *gorm.DB
	locks         *LockTable
	bus           *events.Bus
	converter     Converter
	targetFormat  string
	retain        time.Duration
	progressEvery time.Duration

	mu           sync.Mutex
	jobs         map[string]*jobEntry
	activeByBook map[uint]string // audiobook ID -> job ID
}

type jobEntry struct {
	job    *Job
	cancel context.CancelFunc
}

// NewJobManager creates a conversion job manager. progressEvery throttles
// conversion.progress events per job; 0 publishes on every change.
func NewJobManager(logger hclog.Logger, db *gorm.DB, locks *LockTable, bus *events.Bus, converter Converter, targetFormat string, retainFinished, progressEvery time.Duration) *JobManager {
	if targetFormat == "" {
		targetFormat = "m4b"
	}
	if retainFinished <= 0 {
		retainFinished = time.Hour
	}
	return &JobManager{
		logger:        logger.Named("conversion"),
		db:            db,
		locks:         locks,
		bus:           bus,
		converter:     converter,
		targetFormat:  targetFormat,
		retain:        retainFinished,
		progressEvery: progressEvery,
		jobs:          make(map[string]*jobEntry),
		activeByBook:  make(map[uint]string),
	}
}

// Start begins a conversion for the audiobook and returns the job ID
// immediately; callers observe progress by polling GetJob. Exactly one of two
// concurrent Start calls for the same audiobook succeeds.
func (m *JobManager) Start(ctx context.Context, book *database.Audiobook) (string, error) {
	dir := filepath.Dir(book.Path)
	jobID := utils.GenerateUUID()

	m.mu.Lock()
	m.pruneFinishedLocked()

	if _, active := m.activeByBook[book.ID]; active {
		m.mu.Unlock()
		return "", ErrJobActive
	}
	if !m.locks.Acquire(dir, jobID) {
		m.mu.Unlock()
		return "", ErrDirectoryLocked
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:          jobID,
		AudiobookID: book.ID,
		Directory:   dir,
		State:       JobQueued,
		CreatedAt:   time.Now(),
	}
	m.jobs[jobID] = &jobEntry{job: job, cancel: cancel}
	m.activeByBook[book.ID] = jobID
	m.mu.Unlock()

	m.logger.Info("conversion queued", "jobID", jobID, "audiobookID", book.ID, "path", book.Path)

	go m.run(jobCtx, job, book)

	return jobID, nil
}

// run executes one conversion. The directory lock and the active-book slot
// are released on every exit path.
func (m *JobManager) run(ctx context.Context, job *Job, book *database.Audiobook) {
	defer func() {
		m.mu.Lock()
		delete(m.activeByBook, book.ID)
		now := time.Now()
		job.FinishedAt = &now
		m.mu.Unlock()
		m.locks.Release(job.Directory, job.ID)
	}()

	m.transition(job, JobRunning, "")
	m.publish(events.EventConversionStarted, job, nil)

	srcExt := filepath.Ext(book.Path)
	dst := strings.TrimSuffix(book.Path, srcExt) + "." + m.targetFormat
	tmp := dst + utils.TempSuffix

	err := m.converter.Convert(ctx, book.Path, tmp, book.Duration, func(pct int) {
		m.setProgress(job, pct)
	})

	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		os.Remove(tmp)
		m.transition(job, JobCancelled, "")
		m.publish(events.EventConversionCancelled, job, nil)
		m.logger.Info("conversion cancelled", "jobID", job.ID, "audiobookID", book.ID)

	case err != nil:
		os.Remove(tmp)
		m.transition(job, JobFailed, err.Error())
		m.publish(events.EventConversionFailed, job, map[string]interface{}{"error": err.Error()})
		m.logger.Error("conversion failed", "jobID", job.ID, "audiobookID", book.ID, "error", err)

	default:
		if err := m.finalize(job, book, tmp, dst); err != nil {
			os.Remove(tmp)
			m.transition(job, JobFailed, err.Error())
			m.publish(events.EventConversionFailed, job, map[string]interface{}{"error": err.Error()})
			m.logger.Error("conversion finalize failed", "jobID", job.ID, "error", err)
			return
		}
		m.setProgress(job, 100)
		m.transition(job, JobCompleted, "")
		m.publish(events.EventConversionCompleted, job, map[string]interface{}{"path": dst})
		m.bus.Publish(events.NewEvent(events.EventLibraryUpdate, map[string]interface{}{
			"audiobook_id": book.ID,
		}))
		m.logger.Info("conversion completed", "jobID", job.ID, "audiobookID", book.ID, "path", dst)
	}
}

// finalize swaps the converted file into place and updates the catalog row.
func (m *JobManager) finalize(job *Job, book *database.Audiobook, tmp, dst string) error {
	info, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("converted file missing: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to move converted file into place: %w", err)
	}
	if dst != book.Path {
		if err := os.Remove(book.Path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove original after conversion", "path", book.Path, "error", err)
		}
	}

	return m.db.Model(&database.Audiobook{}).
		Where("id = ?", book.ID).
		Updates(map[string]interface{}{
			"path":       dst,
			"format":     m.targetFormat,
			"size_bytes": info.Size(),
		}).Error
}

// Cancel requests cooperative cancellation of a job. The worker observes the
// cancelled context at its next checkpoint. Cancelling a finished job is an
// error only when the job is unknown.
func (m *JobManager) Cancel(jobID string) error {
	m.mu.Lock()
	entry, ok := m.jobs[jobID]
	m.mu.Unlock()

	if !ok {
		return ErrJobNotFound
	}
	entry.cancel()
	return nil
}

// GetJob returns a snapshot of one job.
func (m *JobManager) GetJob(jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *entry.job
	return &copied, nil
}

// ActiveJobs returns snapshots of all jobs that have not reached a terminal
// state.
func (m *JobManager) ActiveJobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Job
	for _, entry := range m.jobs {
		if !entry.job.State.Terminal() {
			copied := *entry.job
			out = append(out, &copied)
		}
	}
	return out
}

// ActiveJobForAudiobook returns the live job for the audiobook, or nil. This
// supports idempotent polling by clients that lost the job ID.
func (m *JobManager) ActiveJobForAudiobook(audiobookID uint) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobID, ok := m.activeByBook[audiobookID]
	if !ok {
		return nil
	}
	copied := *m.jobs[jobID].job
	return &copied
}

// IsDirectoryLocked reports whether the directory is held by any job.
func (m *JobManager) IsDirectoryLocked(dir string) bool {
	return m.locks.IsLocked(dir)
}

func (m *JobManager) transition(job *Job, state JobState, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.State = state
	job.Error = errMsg
	if state == JobRunning && job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}
}

func (m *JobManager) setProgress(job *Job, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	m.mu.Lock()
	changed := job.Progress != pct
	job.Progress = pct
	// Completion always publishes; intermediate changes are rate-limited to
	// the configured cadence.
	publish := changed && (m.progressEvery <= 0 || pct == 100 ||
		time.Since(job.lastProgressPub) >= m.progressEvery)
	if publish {
		job.lastProgressPub = time.Now()
	}
	m.mu.Unlock()

	if publish {
		m.publish(events.EventConversionProgress, job, nil)
	}
}

func (m *JobManager) publish(eventType events.EventType, job *Job, extra map[string]interface{}) {
	m.mu.Lock()
	data := map[string]interface{}{
		"job_id":       job.ID,
		"audiobook_id": job.AudiobookID,
		"state":        string(job.State),
		"progress":     job.Progress,
	}
	m.mu.Unlock()
	for k, v := range extra {
		data[k] = v
	}
	m.bus.Publish(events.NewEvent(eventType, data))
}

// pruneFinishedLocked drops terminal jobs older than the retention window.
// Caller holds m.mu.
func (m *JobManager) pruneFinishedLocked() {
	cutoff := time.Now().Add(-m.retain)
	for id, entry := range m.jobs {
		if entry.job.State.Terminal() && entry.job.FinishedAt != nil && entry.job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
