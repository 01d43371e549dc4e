package grading

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
	"github.com/mind-engage/mindengage-mastery/internal/logger"
)

// Engine options

type Option func(*config)

type config struct {
	Concurrency int // per-student tasks in flight
	Log         *logger.Logger
	Now         func() time.Time
}

func WithConcurrency(n int) Option          { return func(c *config) { c.Concurrency = n } }
func WithLogger(l *logger.Logger) Option    { return func(c *config) { c.Log = l } }
func WithClock(now func() time.Time) Option { return func(c *config) { c.Now = now } }

// Engine decides pass/fail per enrollment from mastery and submission
// evidence. Pillars run in a fixed order: mastery, then completion.
type Engine struct {
	store   Store
	pillars []Pillar
	cfg     config
}

func NewEngine(store Store, mastery MasteryReader, opts ...Option) *Engine {
	cfg := config{
		Concurrency: 8,
		Log:         logger.Nop(),
		Now:         time.Now,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Engine{
		store: store,
		pillars: []Pillar{
			masteryPillar{mastery: mastery},
			completionPillar{store: store},
		},
		cfg: cfg,
	}
}

// Preview evaluates every configured pillar for every enrolled student
// without writing anything.
func (e *Engine) Preview(ctx context.Context, actor Actor, sectionID string) ([]StudentPreview, error) {
	f, enrollments, err := e.load(ctx, actor, sectionID)
	if err != nil {
		return nil, err
	}
	out := make([]StudentPreview, len(enrollments))
	e.fanOut(len(enrollments), func(i int) {
		out[i] = e.previewOne(ctx, f, enrollments[i].Student)
	})
	return out, nil
}

// Process grades every enrolled student and writes passed or failed. One
// student's failure is reported in its own result and never stops the batch.
func (e *Engine) Process(ctx context.Context, actor Actor, sectionID string) (ProcessResult, error) {
	f, enrollments, err := e.load(ctx, actor, sectionID)
	if err != nil {
		return ProcessResult{}, err
	}
	results := make([]Result, len(enrollments))
	e.fanOut(len(enrollments), func(i int) {
		results[i] = e.commitOne(ctx, f, enrollments[i].Student)
	})

	sum := Summary{SectionID: f.Section.ID, Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case ResultPassed:
			sum.Passed++
		case ResultFailed:
			sum.Failed++
		default:
			sum.Errored++
		}
	}
	e.cfg.Log.Info("section graded",
		"section_id", f.Section.ID, "actor", actor.ID,
		"total", sum.Total, "passed", sum.Passed, "failed", sum.Failed, "errored", sum.Errored)
	return ProcessResult{Summary: sum, Results: results}, nil
}

func (e *Engine) load(ctx context.Context, actor Actor, sectionID string) (*sectionFacts, []Enrollment, error) {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return nil, nil, apperr.InvalidArgument("section is required")
	}
	sec, err := e.store.GetSection(ctx, sectionID)
	if err != nil {
		return nil, nil, err
	}
	if actor.Role != RoleAdmin && (actor.ID == "" || actor.ID != sec.InstructorID) {
		return nil, nil, apperr.Forbidden("only the section instructor or an administrator may grade section %q", sectionID)
	}
	if err := sec.Criteria.Validate(); err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInvalidState, err, "section criteria")
	}
	f := &sectionFacts{Section: sec}
	if f.Modules, err = e.store.PublishedModules(ctx, sectionID); err != nil {
		return nil, nil, err
	}
	if f.Assignments, err = e.store.CountAssignments(ctx, sectionID); err != nil {
		return nil, nil, err
	}
	enrollments, err := e.store.ListEnrollments(ctx, sectionID)
	if err != nil {
		return nil, nil, err
	}
	return f, enrollments, nil
}

// fanOut runs task for 0..n-1 with bounded concurrency. Tasks report their
// own failures, so the group never cancels.
func (e *Engine) fanOut(n int, task func(i int)) {
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			task(i)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) previewOne(ctx context.Context, f *sectionFacts, student string) StudentPreview {
	p := StudentPreview{Student: student, Checks: []Check{}, WouldPass: true}
	for _, pl := range e.pillars {
		if !pl.Applies(f.Section.Criteria) {
			continue
		}
		chk, err := pl.Evaluate(ctx, f, student, false)
		if err != nil {
			return StudentPreview{Student: student, Checks: p.Checks, Error: err.Error()}
		}
		p.Checks = append(p.Checks, chk)
		p.WouldPass = p.WouldPass && chk.IsMet
	}
	return p
}

func (e *Engine) commitOne(ctx context.Context, f *sectionFacts, student string) Result {
	status, reason := EnrollmentPassed, ""
	for _, pl := range e.pillars {
		if !pl.Applies(f.Section.Criteria) {
			continue
		}
		chk, err := pl.Evaluate(ctx, f, student, true)
		if err != nil {
			e.cfg.Log.Warn("grading evaluation failed", "section_id", f.Section.ID, "student", student, "pillar", pl.Name(), "error", err)
			return Result{Student: student, Status: ResultError, Error: err.Error()}
		}
		if !chk.IsMet {
			status, reason = EnrollmentFailed, chk.Reason
			break
		}
	}
	if err := e.store.SetEnrollmentOutcome(ctx, f.Section.ID, student, status, reason, e.cfg.Now().UTC()); err != nil {
		e.cfg.Log.Warn("grading write failed", "section_id", f.Section.ID, "student", student, "error", err)
		return Result{Student: student, Status: ResultError, Reason: reason, Error: err.Error()}
	}
	return Result{Student: student, Status: ResultStatus(status), Reason: reason}
}
