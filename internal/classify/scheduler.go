package classify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KanuToCL/SonoTag-sub000/internal/score"
)

// Scheduler state machine
type schedulerState int

const (
	stateIdle schedulerState = iota
	stateInFlight
	stateStopped
)

func (s schedulerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateInFlight:
		return "in_flight"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Submission outcomes. A rejected window is discarded, never queued; the
// accumulator keeps filling and the next full window is a fresh attempt.
var (
	// ErrBusy means a request is already in flight
	ErrBusy = errors.New("classification already in flight")
	// ErrCooldown means the previous request completed too recently
	ErrCooldown = errors.New("classification in cooldown")
	// ErrStopped means the scheduler has been stopped
	ErrStopped = errors.New("scheduler stopped")
)

// ResultHandler receives a completed, normalized score set
type ResultHandler func(scores *score.ScoreSet, latency time.Duration)

// ErrorHandler receives a failed classification's error
type ErrorHandler func(err error, latency time.Duration)

// SchedulerConfig contains scheduler configuration
type SchedulerConfig struct {
	Cooldown time.Duration
	Timeout  time.Duration
}

// Scheduler enforces the single-flight discipline over a Classifier: at most
// one request in flight, a cooldown after each completion, and no delivery
// of responses that land after Stop.
type Scheduler struct {
	classifier Classifier
	config     SchedulerConfig

	onResult ResultHandler
	onError  ErrorHandler

	state      schedulerState
	generation uint64
	lastDone   time.Time

	// Cancels the in-flight request's context. Set while a request is
	// outstanding, nil otherwise.
	cancelInFlight context.CancelFunc

	// Statistics
	submitted uint64
	dropped   uint64
	completed uint64
	failed    uint64

	wg sync.WaitGroup
	mu sync.Mutex
}

// SchedulerStats represents scheduler statistics
type SchedulerStats struct {
	State     string `json:"state"`
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

// NewScheduler creates a new single-flight classification scheduler
func NewScheduler(classifier Classifier, config SchedulerConfig, onResult ResultHandler, onError ErrorHandler) *Scheduler {
	return &Scheduler{
		classifier: classifier,
		config:     config,
		onResult:   onResult,
		onError:    onError,
		state:      stateIdle,
	}
}

// Submit attempts to launch a classification for one packaged window.
// Returns ErrBusy while a request is in flight, ErrCooldown inside the
// cooldown interval, and ErrStopped after Stop. On acceptance the request
// runs on its own goroutine and the handlers fire when it completes.
func (s *Scheduler) Submit(wav []byte, prompts []string) error {
	s.mu.Lock()

	switch s.state {
	case stateStopped:
		s.mu.Unlock()
		return ErrStopped
	case stateInFlight:
		s.dropped++
		s.mu.Unlock()
		return ErrBusy
	}

	if s.config.Cooldown > 0 && !s.lastDone.IsZero() && time.Since(s.lastDone) < s.config.Cooldown {
		s.dropped++
		s.mu.Unlock()
		return ErrCooldown
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if s.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	s.state = stateInFlight
	s.generation++
	gen := s.generation
	s.submitted++
	s.cancelInFlight = cancel
	s.mu.Unlock()

	request := &Request{
		RequestID:   uuid.New().String(),
		WAV:         wav,
		Prompts:     prompts,
		SubmittedAt: time.Now(),
	}

	s.wg.Add(1)
	go s.run(ctx, cancel, request, gen)

	return nil
}

// run executes one classification on its own goroutine
func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, request *Request, gen uint64) {
	defer s.wg.Done()
	defer cancel()

	result, err := s.classifier.Classify(ctx, request)
	latency := time.Since(request.SubmittedAt)

	s.mu.Lock()
	// A response arriving after Stop, or after a newer generation took
	// over, is dropped without touching the handlers.
	if s.state == stateStopped || gen != s.generation {
		s.mu.Unlock()
		return
	}

	s.state = stateIdle
	s.lastDone = time.Now()
	s.cancelInFlight = nil

	if err != nil {
		s.failed++
		s.mu.Unlock()
		if s.onError != nil {
			s.onError(err, latency)
		}
		return
	}

	s.completed++
	s.mu.Unlock()

	if s.onResult != nil {
		scores := &score.ScoreSet{
			Prompts:     request.Prompts,
			Raw:         result.RawScores,
			FrameScores: result.FrameScores,
			SubmittedAt: request.SubmittedAt,
		}
		s.onResult(scores, latency)
	}
}

// InFlight reports whether a request is currently outstanding
func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateInFlight
}

// Stop transitions the scheduler to its terminal state. The outstanding
// request's context is cancelled since its response would be discarded
// anyway, so Stop returns without waiting out the model timeout.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.state = stateStopped
	cancel := s.cancelInFlight
	s.cancelInFlight = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// GetStats returns current scheduler statistics
func (s *Scheduler) GetStats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SchedulerStats{
		State:     s.state.String(),
		Submitted: s.submitted,
		Dropped:   s.dropped,
		Completed: s.completed,
		Failed:    s.failed,
	}
}
