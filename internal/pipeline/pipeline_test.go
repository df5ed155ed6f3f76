package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Kll222/tmdb-tracker/internal/media"
	"github.com/Kll222/tmdb-tracker/internal/store"
	"github.com/Kll222/tmdb-tracker/internal/tmdb"
	"github.com/Kll222/tmdb-tracker/internal/window"
)

type fakeLister struct {
	pages     map[tmdb.Kind][]tmdb.DiscoverPage
	pageErr   map[int]error
	details   map[int64]*tmdb.Item
	detailErr error

	queries   []tmdb.DiscoverQuery
	languages []string
	onListing func()
}

func (f *fakeLister) Discover(_ context.Context, q tmdb.DiscoverQuery) (*tmdb.DiscoverPage, error) {
	f.queries = append(f.queries, q)
	if f.onListing != nil {
		f.onListing()
	}
	if err := f.pageErr[q.Page]; err != nil {
		return nil, err
	}
	pages := f.pages[q.Kind]
	if q.Page-1 < len(pages) {
		p := pages[q.Page-1]
		return &p, nil
	}
	return &tmdb.DiscoverPage{Page: q.Page}, nil
}

func (f *fakeLister) Details(_ context.Context, _ tmdb.Kind, id int64, language string) (*tmdb.Item, error) {
	f.languages = append(f.languages, language)
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return &tmdb.Item{}, nil
}

type recordingSink struct {
	written [][]media.Record
	err     error
	events  *[]string
}

func (s *recordingSink) Write(_ context.Context, records []media.Record) (int, error) {
	if s.events != nil {
		*s.events = append(*s.events, "write")
	}
	if s.err != nil {
		return 0, s.err
	}
	s.written = append(s.written, records)
	return len(records), nil
}

type recordingPruner struct {
	before []string
	events *[]string
}

func (p *recordingPruner) Prune(_ context.Context, before string) (int64, error) {
	*p.events = append(*p.events, "prune")
	p.before = append(p.before, before)
	return 2, nil
}

type mockRunLog struct {
	mock.Mock
}

func (m *mockRunLog) CreateRun(ctx context.Context, run *store.Run) error {
	args := m.Called(ctx, run)
	run.ID = "run-1"
	return args.Error(0)
}

func (m *mockRunLog) UpdateRun(ctx context.Context, run *store.Run) error {
	return m.Called(ctx, run).Error(0)
}

var fixedNow = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.Local) }

func movie(id int64, lang string) tmdb.Item {
	return tmdb.Item{
		ID:               id,
		Title:            "Movie",
		ReleaseDate:      "2026-10-15",
		OriginCountry:    []string{"US"},
		GenreIDs:         []int{28},
		Overview:         "An overview.",
		PosterPath:       "/poster.jpg",
		OriginalLanguage: lang,
	}
}

func testOptions(kinds ...tmdb.Kind) Options {
	return Options{
		Kinds:             kinds,
		Window:            &window.Calculator{Days: 3, Now: fixedNow},
		Retention:         &window.Calculator{Days: 3, Now: fixedNow},
		RespectTotalPages: true,
	}
}

func TestRunPersistsPrimaryFieldsWhenDetailEmpty(t *testing.T) {
	lister := &fakeLister{pages: map[tmdb.Kind][]tmdb.DiscoverPage{
		tmdb.Movie: {{Page: 1, TotalPages: 1, Results: []tmdb.Item{movie(42, "en")}}},
	}}
	sink := &recordingSink{}

	report, err := NewService(lister, sink, testOptions(tmdb.Movie), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	want := media.Record{
		ID:          42,
		Title:       "Movie",
		ReleaseDate: "2026-10-15",
		Region:      "美国",
		Genres:      "动作",
		Overview:    "An overview.",
		PosterURL:   "https://image.tmdb.org/t/p/w500/poster.jpg",
		MediaType:   tmdb.Movie,
	}
	require.Len(t, sink.written, 1)
	assert.Equal(t, []media.Record{want}, sink.written[0])
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 1, report.AcceptedByKind["movie"])
	assert.Equal(t, []string{"zh-CN"}, lister.languages)

	require.Len(t, lister.queries, 1)
	q := lister.queries[0]
	assert.Equal(t, "en-US", q.Language)
	assert.Equal(t, "2026-10-14", q.Window.StartISO())
	assert.Equal(t, "2026-10-16", q.Window.EndISO())
}

func TestRunPrefersSecondaryLocale(t *testing.T) {
	lister := &fakeLister{
		pages: map[tmdb.Kind][]tmdb.DiscoverPage{
			tmdb.TV: {{Page: 1, TotalPages: 1, Results: []tmdb.Item{{
				ID: 7, Name: "Show", FirstAirDate: "2026-10-16", OriginCountry: []string{"KR"},
				GenreIDs: []int{18}, Overview: "English", PosterPath: "/en.jpg", OriginalLanguage: "ko",
			}}}},
		},
		details: map[int64]*tmdb.Item{
			7: {ID: 7, Name: "剧集", Overview: "中文简介", Genres: []tmdb.Genre{{ID: 18, Name: "剧情"}}},
		},
	}
	sink := &recordingSink{}

	_, err := NewService(lister, sink, testOptions(tmdb.TV), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.written[0], 1)
	got := sink.written[0][0]
	assert.Equal(t, "剧集", got.Title)
	assert.Equal(t, "中文简介", got.Overview)
	assert.Equal(t, "2026-10-16", got.ReleaseDate)
	assert.Equal(t, "韩国", got.Region)
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/en.jpg", got.PosterURL)
	assert.Equal(t, tmdb.TV, got.MediaType)
}

func TestRunRejectsLanguageAndPartialRecords(t *testing.T) {
	partial := movie(2, "ja")
	partial.Overview = ""
	lister := &fakeLister{pages: map[tmdb.Kind][]tmdb.DiscoverPage{
		tmdb.Movie: {{Page: 1, TotalPages: 1, Results: []tmdb.Item{movie(1, "de"), partial, movie(3, "FR")}}},
	}}
	sink := &recordingSink{}

	report, err := NewService(lister, sink, testOptions(tmdb.Movie), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 1, report.RejectedLanguage)
	assert.Equal(t, 1, report.RejectedPartial)
	assert.Equal(t, 2, report.Rejected())
	require.Len(t, sink.written[0], 1)
	assert.Equal(t, int64(3), sink.written[0][0].ID)
}

func TestRunPaginatesUntilEmptyPage(t *testing.T) {
	lister := &fakeLister{pages: map[tmdb.Kind][]tmdb.DiscoverPage{
		tmdb.Movie: {
			{Page: 1, Results: []tmdb.Item{movie(1, "en")}},
			{Page: 2, Results: []tmdb.Item{movie(2, "en")}},
		},
	}}
	opts := testOptions(tmdb.Movie)
	opts.RespectTotalPages = false

	report, err := NewService(lister, &recordingSink{}, opts, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, lister.queries, 3)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 2, report.Accepted)
}

func TestRunStopsAtTotalPagesAndPageCap(t *testing.T) {
	pages := []tmdb.DiscoverPage{
		{Page: 1, TotalPages: 2, Results: []tmdb.Item{movie(1, "en")}},
		{Page: 2, TotalPages: 2, Results: []tmdb.Item{movie(2, "en")}},
		{Page: 3, TotalPages: 2, Results: []tmdb.Item{movie(3, "en")}},
	}
	lister := &fakeLister{pages: map[tmdb.Kind][]tmdb.DiscoverPage{tmdb.Movie: pages}}
	_, err := NewService(lister, &recordingSink{}, testOptions(tmdb.Movie), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, lister.queries, 2)

	capped := &fakeLister{pages: map[tmdb.Kind][]tmdb.DiscoverPage{tmdb.Movie: pages}}
	opts := testOptions(tmdb.Movie)
	opts.RespectTotalPages = false
	opts.MaxPages = 1
	_, err = NewService(capped, &recordingSink{}, opts, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, capped.queries, 1)
}

func TestRunTreatsFetchErrorsAsEmpty(t *testing.T) {
	lister := &fakeLister{
		pages: map[tmdb.Kind][]tmdb.DiscoverPage{
			tmdb.Movie: {
				{Page: 1, TotalPages: 5, Results: []tmdb.Item{movie(1, "en")}},
				{Page: 2, TotalPages: 5, Results: []tmdb.Item{movie(2, "en")}},
			},
		},
		pageErr:   map[int]error{2: errors.New("connection reset")},
		detailErr: errors.New("timeout"),
	}
	sink := &recordingSink{}

	report, err := NewService(lister, sink, testOptions(tmdb.Movie), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, lister.queries, 2)
	assert.Equal(t, 1, report.DetailFailures)
	assert.Equal(t, 1, report.Written)
}

func TestRunPrunesBeforeWriting(t *testing.T) {
	var events []string
	lister := &fakeLister{pages: map[tmdb.Kind][]tmdb.DiscoverPage{
		tmdb.Movie: {{Page: 1, TotalPages: 1, Results: []tmdb.Item{movie(1, "en")}}},
	}}
	sink := &recordingSink{events: &events}
	pruner := &recordingPruner{events: &events}

	report, err := NewService(lister, sink, testOptions(tmdb.Movie), zerolog.Nop()).
		WithPruner(pruner).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"prune", "write"}, events)
	assert.Equal(t, []string{"2026-10-14"}, pruner.before)
	assert.Equal(t, int64(2), report.Pruned)
}

func TestRunCancelledDoesNotWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lister := &fakeLister{
		pages: map[tmdb.Kind][]tmdb.DiscoverPage{
			tmdb.Movie: {
				{Page: 1, Results: []tmdb.Item{movie(1, "en")}},
				{Page: 2, Results: []tmdb.Item{movie(2, "en")}},
			},
		},
		onListing: cancel,
	}
	sink := &recordingSink{}

	_, err := NewService(lister, sink, testOptions(tmdb.Movie), zerolog.Nop()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.written)
}

func TestRunRecordsRunLog(t *testing.T) {
	lister := &fakeLister{pages: map[tmdb.Kind][]tmdb.DiscoverPage{
		tmdb.Movie: {{Page: 1, TotalPages: 1, Results: []tmdb.Item{movie(1, "en"), movie(2, "xx")}}},
	}}
	runs := &mockRunLog{}
	runs.On("CreateRun", mock.Anything, mock.MatchedBy(func(r *store.Run) bool { return r.Sink == "sqlite" })).Return(nil)
	runs.On("UpdateRun", mock.Anything, mock.MatchedBy(func(r *store.Run) bool {
		return r.Status == store.RunCompleted && r.Fetched == 2 && r.Accepted == 1 && r.Rejected == 1 && r.Written == 1 && r.FinishedAt != nil
	})).Return(nil)

	opts := testOptions(tmdb.Movie)
	opts.SinkName = "sqlite"
	report, err := NewService(lister, &recordingSink{}, opts, zerolog.Nop()).WithRunLog(runs).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	runs.AssertExpectations(t)
}

func TestRunMarksFailedRunOnSinkError(t *testing.T) {
	lister := &fakeLister{pages: map[tmdb.Kind][]tmdb.DiscoverPage{
		tmdb.Movie: {{Page: 1, TotalPages: 1, Results: []tmdb.Item{movie(1, "en")}}},
	}}
	runs := &mockRunLog{}
	runs.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	runs.On("UpdateRun", mock.Anything, mock.MatchedBy(func(r *store.Run) bool {
		return r.Status == store.RunFailed && r.Error != ""
	})).Return(nil)

	_, err := NewService(lister, &recordingSink{err: errors.New("disk full")}, testOptions(tmdb.Movie), zerolog.Nop()).
		WithRunLog(runs).
		Run(context.Background())
	require.ErrorContains(t, err, "disk full")
	runs.AssertExpectations(t)
}

func TestProgressCallback(t *testing.T) {
	lister := &fakeLister{pages: map[tmdb.Kind][]tmdb.DiscoverPage{
		tmdb.Movie: {{Page: 1, TotalPages: 1, Results: []tmdb.Item{movie(1, "en")}}},
	}}
	svc := NewService(lister, &recordingSink{}, testOptions(tmdb.Movie), zerolog.Nop())
	var seen []Progress
	svc.SetProgressCallback(func(p Progress) { seen = append(seen, p) })

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, Progress{Kind: tmdb.Movie, Page: 1, Fetched: 1, Accepted: 1}, seen[0])
	assert.Equal(t, seen[0], svc.Progress())
}
