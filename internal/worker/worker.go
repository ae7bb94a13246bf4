package worker

import (
	"context"
	"fmt"
	"log/slog"
	"marketnews/internal/domain"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner выполняет один прогон сбора.
type Runner interface {
	Run(ctx context.Context) (domain.Summary, error)
}

// Report описывает последний завершенный прогон.
type Report struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Summary    domain.Summary `json:"summary"`
	Error      string         `json:"error,omitempty"`
}

// Worker запускает прогоны сбора по cron-расписанию.
// Первый прогон выполняется сразу при старте. Пока прогон идет,
// очередные срабатывания расписания пропускаются.
type Worker struct {
	runner   Runner
	schedule string
	timeout  time.Duration
	log      *slog.Logger
	cron     *cron.Cron
	running  atomic.Bool
	skipped  atomic.Int64
	last     atomic.Pointer[Report]
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New создает воркер. schedule - стандартное cron-выражение из пяти полей
// или дескриптор вида @hourly. timeout ограничивает один прогон; 0 - без ограничения.
func New(runner Runner, schedule string, timeout time.Duration, log *slog.Logger) (*Worker, error) {
	log = log.With(slog.String("component", "worker"))
	c := cron.New(cron.WithLogger(cronLogger{log: log}))
	w := &Worker{
		runner:   runner,
		schedule: schedule,
		timeout:  timeout,
		log:      log,
		cron:     c,
	}
	if _, err := c.AddFunc(schedule, w.trigger); err != nil {
		return nil, &domain.ConfigurationError{Field: "SCHEDULE", Reason: fmt.Sprintf("is not a valid cron expression: %v", err)}
	}
	return w, nil
}

// Start запускает расписание и немедленный первый прогон.
func (w *Worker) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.log.Info("Collection worker started", slog.String("schedule", w.schedule))
	w.cron.Start()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.trigger()
	}()
}

// Stop останавливает расписание, отменяет текущий прогон и ждет его завершения.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.cron.Stop().Done()
	w.wg.Wait()
	w.log.Info("Worker stopped", slog.Int64("skipped_passes", w.skipped.Load()))
}

// LastReport возвращает итог последнего прогона или nil, если прогонов еще не было.
func (w *Worker) LastReport() *Report { return w.last.Load() }

// Skipped возвращает число срабатываний, пропущенных из-за незавершенного прогона.
func (w *Worker) Skipped() int64 { return w.skipped.Load() }

func (w *Worker) trigger() {
	if !w.running.CompareAndSwap(false, true) {
		w.skipped.Add(1)
		w.log.Warn("Previous pass still running, trigger skipped")
		return
	}
	defer w.running.Store(false)
	if w.ctx.Err() != nil {
		return
	}
	ctx := w.ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	start := time.Now()
	summary, err := w.runner.Run(ctx)
	report := &Report{StartedAt: start, FinishedAt: time.Now(), Summary: summary}
	if err != nil {
		report.Error = err.Error()
	}
	w.last.Store(report)
	if err != nil {
		w.log.Error("Collection pass failed",
			slog.Int("inserted", summary.Inserted),
			slog.Int("skipped", summary.Skipped),
			slog.Any("error", err),
		)
		return
	}
	w.log.Info("Collection pass completed",
		slog.Int("considered", summary.Considered),
		slog.Int("inserted", summary.Inserted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failures", len(summary.Failures)),
		slog.Duration("duration", time.Since(start)),
	)
}

// cronLogger направляет сообщения планировщика в slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
