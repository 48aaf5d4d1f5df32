package scenario

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/uiharness/internal/browser/interact"
)

// Result is the outcome of one scenario.
type Result struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	Unit string `json:"unit"`

	Passed bool `json:"passed"`
	// FailedStep is the 1-based index of the failing step; 0 when none ran
	// or all passed.
	FailedStep int    `json:"failed_step,omitempty"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`

	Duration   time.Duration `json:"duration"`
	Screenshot string        `json:"screenshot,omitempty"`
}

// Runner executes scripts concurrently, one execution unit per script.
type Runner struct {
	hooks       *Hooks
	concurrency int
	baseURL     string
	execOpts    []interact.Option
	logger      *zap.Logger
	newUnit     func(name string) string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency bounds how many scenarios run at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithBaseURL sets the base for relative navigate targets in scripts that
// set no base_url of their own.
func WithBaseURL(u string) RunnerOption { return func(r *Runner) { r.baseURL = u } }

// WithExecutorOptions configures every scenario's executor.
func WithExecutorOptions(opts ...interact.Option) RunnerOption {
	return func(r *Runner) { r.execOpts = append(r.execOpts, opts...) }
}

// WithRunnerLogger sets the logger; the runner names itself "runner".
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l.Named("runner") }
}

// NewRunner returns a runner over hooks.
func NewRunner(hooks *Hooks, opts ...RunnerOption) *Runner {
	r := &Runner{
		hooks:       hooks,
		concurrency: 1,
		logger:      zap.NewNop(),
		newUnit:     unitID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// unitID derives a unique, file-name-safe unit id from a scenario name.
func unitID(name string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	if slug == "" {
		slug = "scenario"
	}
	return slug + "-" + uuid.NewString()[:8]
}

// Run executes every script and returns their results in input order. A
// failing scenario does not stop the others; ctx cancellation does.
func (r *Runner) Run(ctx context.Context, scripts []*Script) []Result {
	results := make([]Result, len(scripts))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, s := range scripts {
		g.Go(func() error {
			results[i] = r.runOne(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) runOne(ctx context.Context, s *Script) Result {
	res := Result{Name: s.Name, Path: s.Path, Unit: r.newUnit(s.Name)}
	logger := r.logger.With(zap.String("scenario", s.Name), zap.String("unit", res.Unit))
	start := time.Now()

	page, err := r.hooks.Before(ctx, res.Unit)
	if err == nil {
		ui := interact.New(page, r.execOpts...)
		res.FailedStep, err = s.Run(ctx, ui, r.baseURL)
	}
	res.Err = err
	res.Passed = err == nil
	res.Screenshot = r.hooks.After(ctx, res.Unit, !res.Passed)
	res.Duration = time.Since(start)

	if res.Passed {
		logger.Info("Scenario passed.", zap.Duration("duration", res.Duration))
	} else {
		res.Error = err.Error()
		logger.Error("Scenario failed.",
			zap.Int("failed_step", res.FailedStep),
			zap.Duration("duration", res.Duration),
			zap.Error(err))
	}
	return res
}
