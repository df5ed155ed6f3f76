// Package pipeline fetches recently released items, normalises and merges
// their locale variants, and hands the accepted records to a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kll222/tmdb-tracker/internal/locale"
	"github.com/Kll222/tmdb-tracker/internal/media"
	"github.com/Kll222/tmdb-tracker/internal/store"
	"github.com/Kll222/tmdb-tracker/internal/tmdb"
	"github.com/Kll222/tmdb-tracker/internal/window"
)

// Lister is the subset of the TMDB client the pipeline needs.
type Lister interface {
	Discover(ctx context.Context, q tmdb.DiscoverQuery) (*tmdb.DiscoverPage, error)
	Details(ctx context.Context, kind tmdb.Kind, id int64, language string) (*tmdb.Item, error)
}

// Sink persists a batch of accepted records and reports how many were written.
type Sink interface {
	Write(ctx context.Context, records []media.Record) (int, error)
}

// Pruner deletes stored records released before the given ISO date.
type Pruner interface {
	Prune(ctx context.Context, before string) (int64, error)
}

// RunLog records one row per pipeline invocation.
type RunLog interface {
	CreateRun(ctx context.Context, run *store.Run) error
	UpdateRun(ctx context.Context, run *store.Run) error
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Kinds           []tmdb.Kind
	PrimaryLocale   string
	SecondaryLocale string
	// Window supplies the discovery date range for every request.
	Window *window.Calculator
	// Retention supplies the prune cutoff; only used with a Pruner.
	Retention         *window.Calculator
	MaxPages          int
	RespectTotalPages bool
	Normalizer        *media.Normalizer
	Gate              *media.LanguageGate
	// SinkName is stored on the run log row.
	SinkName string
}

func (o *Options) applyDefaults() {
	if len(o.Kinds) == 0 {
		o.Kinds = []tmdb.Kind{tmdb.Movie, tmdb.TV}
	}
	if o.PrimaryLocale == "" {
		o.PrimaryLocale = "en-US"
	}
	if o.SecondaryLocale == "" {
		o.SecondaryLocale = "zh-CN"
	}
	if o.Window == nil {
		o.Window = window.NewCalculator(window.DefaultDays, false)
	}
	if o.Retention == nil {
		o.Retention = window.NewCalculator(window.DefaultDays, false)
	}
	if o.MaxPages < 1 || o.MaxPages > tmdb.MaxPages {
		o.MaxPages = tmdb.MaxPages
	}
	if o.Normalizer == nil {
		o.Normalizer = media.NewNormalizer(locale.Default())
	}
	if o.Gate == nil {
		gate := media.NewLanguageGate(o.Normalizer.Tables())
		o.Gate = &gate
	}
}

// Progress is reported after every page.
type Progress struct {
	Kind     tmdb.Kind
	Page     int
	Fetched  int
	Accepted int
}

// Report summarises one run.
type Report struct {
	RunID            string         `json:"run_id,omitempty"`
	Window           string         `json:"window"`
	Pages            int            `json:"pages"`
	Fetched          int            `json:"fetched"`
	DetailFailures   int            `json:"detail_failures"`
	RejectedPartial  int            `json:"rejected_partial"`
	RejectedLanguage int            `json:"rejected_language"`
	Accepted         int            `json:"accepted"`
	AcceptedByKind   map[string]int `json:"accepted_by_kind"`
	Written          int            `json:"written"`
	Pruned           int64          `json:"pruned"`
	Duration         time.Duration  `json:"duration"`
}

// Rejected is the total number of items dropped by the merge and language checks.
func (r *Report) Rejected() int {
	return r.RejectedPartial + r.RejectedLanguage
}

// Service runs the fetch, merge and persist pipeline.
type Service struct {
	lister Lister
	sink   Sink
	pruner Pruner
	runs   RunLog
	opts   Options
	logger zerolog.Logger

	onProgress func(Progress)
	progress   atomic.Pointer[Progress]
}

// NewService creates a pipeline service.
func NewService(lister Lister, sink Sink, opts Options, logger zerolog.Logger) *Service {
	opts.applyDefaults()
	return &Service{
		lister: lister,
		sink:   sink,
		opts:   opts,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// WithPruner enables retention pruning before each write.
func (s *Service) WithPruner(p Pruner) *Service {
	s.pruner = p
	return s
}

// WithRunLog records each run.
func (s *Service) WithRunLog(r RunLog) *Service {
	s.runs = r
	return s
}

// SetProgressCallback sets a function called after every page.
func (s *Service) SetProgressCallback(fn func(Progress)) {
	s.onProgress = fn
}

// Progress returns the latest progress snapshot.
func (s *Service) Progress() Progress {
	p := s.progress.Load()
	if p == nil {
		return Progress{}
	}
	return *p
}

func (s *Service) reportProgress(p Progress) {
	s.progress.Store(&p)
	if s.onProgress != nil {
		s.onProgress(p)
	}
}

// Run executes one pass over every configured kind. Transport failures are
// logged and end pagination for that kind; persistence failures fail the run.
// A cancelled context aborts before anything is written.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{
		Window:         s.opts.Window.Current().String(),
		AcceptedByKind: make(map[string]int),
	}

	var run *store.Run
	if s.runs != nil {
		run = &store.Run{Sink: s.opts.SinkName}
		if err := s.runs.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("creating run: %w", err)
		}
		report.RunID = run.ID
	}

	err := s.run(ctx, report)
	report.Duration = time.Since(started)
	if run != nil {
		s.finishRun(ctx, run, report, err)
	}
	if err != nil {
		return report, err
	}

	s.logger.Info().
		Int("fetched", report.Fetched).
		Int("accepted", report.Accepted).
		Int("written", report.Written).
		Int64("pruned", report.Pruned).
		Dur("took", report.Duration).
		Msg("run finished")
	return report, nil
}

func (s *Service) run(ctx context.Context, report *Report) error {
	var batch []media.Record
	for _, kind := range s.opts.Kinds {
		records, err := s.collect(ctx, kind, report)
		if err != nil {
			return err
		}
		batch = append(batch, records...)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if s.pruner != nil {
		before := s.opts.Retention.Current().StartISO()
		pruned, err := s.pruner.Prune(ctx, before)
		if err != nil {
			return fmt.Errorf("pruning before %s: %w", before, err)
		}
		report.Pruned = pruned
		s.logger.Debug().Str("before", before).Int64("deleted", pruned).Msg("pruned stale records")
	}

	written, err := s.sink.Write(ctx, batch)
	if err != nil {
		return fmt.Errorf("writing %d records: %w", len(batch), err)
	}
	report.Written = written
	return nil
}

// collect pages through one kind until an empty page, the page cap or the
// reported total_pages.
func (s *Service) collect(ctx context.Context, kind tmdb.Kind, report *Report) ([]media.Record, error) {
	log := s.logger.With().Str("kind", kind.String()).Logger()
	var accepted []media.Record

	for page := 1; page <= s.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q := tmdb.DiscoverQuery{
			Kind:     kind,
			Page:     page,
			Language: s.opts.PrimaryLocale,
			Window:   s.opts.Window.Current(),
		}
		result, err := s.lister.Discover(ctx, q)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warn().Err(err).Int("page", page).Msg("listing failed, stopping pagination")
			break
		}
		if result == nil || len(result.Results) == 0 {
			log.Debug().Int("page", page).Msg("empty page, end of listing")
			break
		}
		report.Pages++

		for _, item := range result.Results {
			report.Fetched++
			rec, ok, err := s.process(ctx, log, kind, item, report)
			if err != nil {
				return nil, err
			}
			if ok {
				accepted = append(accepted, rec)
				report.Accepted++
				report.AcceptedByKind[kind.String()]++
			}
		}

		s.reportProgress(Progress{Kind: kind, Page: page, Fetched: report.Fetched, Accepted: report.Accepted})

		if s.opts.RespectTotalPages && result.TotalPages > 0 && page >= result.TotalPages {
			break
		}
	}

	log.Info().Int("accepted", len(accepted)).Msg("listing done")
	return accepted, nil
}

func (s *Service) process(ctx context.Context, log zerolog.Logger, kind tmdb.Kind, item tmdb.Item, report *Report) (media.Record, bool, error) {
	primary := s.opts.Normalizer.Normalize(item, kind)

	var secondary media.Record
	detail, err := s.lister.Details(ctx, kind, item.ID, s.opts.SecondaryLocale)
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return media.Record{}, false, ctxErr
		}
		report.DetailFailures++
		log.Debug().Err(err).Int64("id", item.ID).Msg("detail lookup failed, using primary only")
	case !detail.IsZero():
		secondary = s.opts.Normalizer.Normalize(*detail, kind)
	}

	merged, ok := media.Merge(primary, secondary)
	if !ok {
		report.RejectedPartial++
		log.Debug().Int64("id", item.ID).Strs("missing", merged.Missing()).Msg("rejected incomplete record")
		return media.Record{}, false, nil
	}
	if !s.opts.Gate.Allows(item.OriginalLanguage) {
		report.RejectedLanguage++
		log.Debug().Int64("id", item.ID).Str("language", item.OriginalLanguage).Msg("rejected language")
		return media.Record{}, false, nil
	}
	return merged, true, nil
}

func (s *Service) finishRun(ctx context.Context, run *store.Run, report *Report, runErr error) {
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Fetched = report.Fetched
	run.Accepted = report.Accepted
	run.Rejected = report.Rejected()
	run.Written = report.Written
	run.Pruned = report.Pruned
	run.Status = store.RunCompleted
	if runErr != nil {
		run.Status = store.RunFailed
		run.Error = runErr.Error()
		if errors.Is(runErr, context.Canceled) {
			run.Error = "cancelled"
		}
	}
	if err := s.runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn().Err(err).Str("run", run.ID).Msg("updating run log")
	}
}
