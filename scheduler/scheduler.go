/*
scheduler.go - Time-triggered settlement jobs

PURPOSE:
  Fires named tasks on daily or monthly triggers and tracks their state so
  operators can see what ran, when, and whether it failed.

DESIGN:
  - One goroutine per registered job, sleeping on a timer until the
    trigger's next instant
  - A job is an ordered list of tasks; each task finishes before the next
    one starts, so the monthly chain runs rollup, attendance, baselines in order
  - A task already running is skipped with a warning; the skip is never
    reported as a failure
  - With a Lease configured, the same guard also holds across processes
  - StopAll only stops future firings and manual runs; Wait blocks until
    in-flight tasks end

USAGE:
  s := scheduler.New()
  scheduler.RegisterDefaults(s, services, scheduler.DefaultSchedule())
  s.Start()
  // ... later
  s.StopAll()
  s.Wait(ctx)

SEE ALSO:
  - jobs.go:   the production task set
  - status.go: StatusTable
*/
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/minefleet/settlement-engine/settlement"
)

// ErrTaskRunning reports that a task was skipped because it is already running.
var ErrTaskRunning = errors.New("task already running")

// ErrUnknownTask is returned by RunTask for a name nobody registered.
var ErrUnknownTask = errors.New("unknown task")

// ErrStopped is returned by manual runs once StopAll has been called.
var ErrStopped = errors.New("scheduler stopped")

// Step is the body of a task. now is the firing instant in the scheduler's location.
type Step func(ctx context.Context, now time.Time) error

type Task struct {
	Name string
	Run  Step
}

type job struct {
	trigger Trigger
	tasks   []Task
}

// Scheduler runs registered jobs on their triggers.
type Scheduler struct {
	Location *time.Location
	Lease    settlement.Lease
	LeaseTTL time.Duration
	Now      func() time.Time

	status *StatusTable
	daily  DailyGenerator

	mu      sync.Mutex
	jobs    []job
	tasks   map[string]Task
	stop    chan struct{}
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{
		Location: time.UTC,
		LeaseTTL: settlement.DefaultLeaseTTL,
		status:   NewStatusTable(),
		tasks:    make(map[string]Task),
		stop:     make(chan struct{}),
	}
}

// Register adds a job whose tasks run in order on each firing. Jobs must be
// registered before Start.
func (s *Scheduler) Register(trigger Trigger, tasks ...Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already started")
	}
	for _, t := range tasks {
		if _, dup := s.tasks[t.Name]; dup {
			return fmt.Errorf("task %q registered twice", t.Name)
		}
	}
	for _, t := range tasks {
		s.tasks[t.Name] = t
		s.status.entry(t.Name)
	}
	s.jobs = append(s.jobs, job{trigger: trigger, tasks: tasks})
	return nil
}

// Start launches one goroutine per job. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(j)
	}
	log.Printf("[Scheduler] Started %d jobs", len(s.jobs))
}

// StopAll prevents any further firings. Tasks already running finish on
// their own; use Wait to block on them.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
	log.Println("[Scheduler] Stopped; no further firings")
}

// Wait stops further firings, then blocks until every job loop and
// in-flight task has returned, or ctx ends.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.StopAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(j job) {
	defer s.wg.Done()

	for {
		next := j.trigger.Next(s.now())
		for _, t := range j.tasks {
			s.status.SetNextRun(t.Name, next)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		for _, t := range j.tasks {
			select {
			case <-s.stop:
				return
			default:
			}
			if err := s.run(context.Background(), t); err != nil && !errors.Is(err, ErrTaskRunning) {
				log.Printf("[Scheduler] Task %s failed: %v", t.Name, err)
			}
		}
	}
}

// RunTask runs a registered task immediately under the same guard as a
// scheduled firing. A skip because the task is running returns ErrTaskRunning.
func (s *Scheduler) RunTask(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	if err := s.track(); err != nil {
		return err
	}
	defer s.wg.Done()
	return s.run(ctx, t)
}

// track counts a manual run as in flight. Once stopped no new run is
// counted, so Wait never races a late Add.
func (s *Scheduler) track() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.wg.Add(1)
	return nil
}

func (s *Scheduler) run(ctx context.Context, t Task) error {
	now := s.now()
	if !s.status.Begin(t.Name, now) {
		log.Printf("[Scheduler] WARN: %s still running, skipping this firing", t.Name)
		return ErrTaskRunning
	}

	if s.Lease != nil {
		release, err := s.Lease.Acquire(ctx, "task:"+t.Name, s.LeaseTTL)
		if err != nil {
			if errors.Is(err, settlement.ErrLeaseHeld) {
				log.Printf("[Scheduler] WARN: %s running in another process, skipping", t.Name)
				s.status.Finish(t.Name, nil)
				return ErrTaskRunning
			}
			s.status.Finish(t.Name, err)
			return err
		}
		defer release()
	}

	log.Printf("[Scheduler] Running %s", t.Name)
	start := time.Now()
	err := t.Run(ctx, now)
	s.status.Finish(t.Name, err)
	if err == nil {
		log.Printf("[Scheduler] %s completed in %v", t.Name, time.Since(start).Round(time.Millisecond))
	}
	return err
}

// Status returns the state of every registered task, sorted by name.
func (s *Scheduler) Status() []TaskStatus {
	return s.status.Snapshot()
}

// TriggerDailySettlement generates daily settlements for an explicit date.
// It is guarded by the per-date lease inside the engine rather than the task
// guard, so backfills for other dates can run beside the scheduled job.
func (s *Scheduler) TriggerDailySettlement(ctx context.Context, date settlement.Date) (*settlement.BatchResult, error) {
	if s.daily == nil {
		return nil, errors.New("daily settlement job not configured")
	}
	if err := s.track(); err != nil {
		return nil, err
	}
	defer s.wg.Done()
	log.Printf("[Scheduler] Manual daily settlement for %s", date)
	return s.daily.GenerateDaily(ctx, date)
}

func (s *Scheduler) now() time.Time {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	return now.In(location(s.Location))
}
