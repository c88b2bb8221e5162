package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cafe_notifier/internal/domain"
	"cafe_notifier/internal/service/mocks"
)

var fixedNow = time.Date(2026, 10, 14, 12, 5, 0, 0, time.Local)

type PollerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	store     *mocks.MockStateStore
	fetcher   *mocks.MockFetcher
	announcer *mocks.MockAnnouncer
	publisher *mocks.MockPublisher

	notice domain.BoardConfig
	free   domain.BoardConfig
	poller *Poller
	logger *slog.Logger
}

func (s *PollerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.store = mocks.NewMockStateStore(s.ctrl)
	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.announcer = mocks.NewMockAnnouncer(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.notice = domain.BoardConfig{Key: "notice", DisplayName: "Notice", LinkBase: "https://cafe.naver.com/hatopia"}
	s.free = domain.BoardConfig{Key: "free", DisplayName: "Free", LinkBase: "https://cafe.naver.com/hatopia"}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.poller = s.newPoller(s.publisher, s.notice)
}

func (s *PollerTestSuite) newPoller(publisher Publisher, boards ...domain.BoardConfig) *Poller {
	p := NewPoller(s.store, s.fetcher, s.announcer, publisher, s.logger, PollerConfig{
		Boards:        boards,
		TitleMaxRunes: 10,
	})
	p.now = func() time.Time { return fixedNow }
	return p
}

func (s *PollerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestPollerTestSuite(t *testing.T) {
	suite.Run(t, new(PollerTestSuite))
}

func (s *PollerTestSuite) TestPoll_FirstObservationSeedsWithoutAnnouncing() {
	ctx := context.Background()

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{}, nil)
	s.fetcher.EXPECT().Fetch(ctx, s.notice).Return(&domain.LatestPost{ID: 100, Title: "A"})
	s.store.EXPECT().Save(ctx, domain.SeenState{"notice": s.notice.Link(100)}).Return(nil)

	stats, err := s.poller.Poll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Checked)
	s.Equal(1, stats.Seeded)
	s.Equal(0, stats.Announced)
}

func (s *PollerTestSuite) TestPoll_SameLinkIsNoChange() {
	ctx := context.Background()

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{"notice": s.notice.Link(100)}, nil)
	s.fetcher.EXPECT().Fetch(ctx, s.notice).Return(&domain.LatestPost{ID: 100, Title: "A-edited"})

	stats, err := s.poller.Poll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Unchanged)
	s.Equal(0, stats.Announced)
}

func (s *PollerTestSuite) TestPoll_NewPostSavesThenAnnounces() {
	ctx := context.Background()
	want := domain.Announcement{
		BoardKey:  "notice",
		BoardName: "Notice",
		Title:     "B",
		Link:      s.notice.Link(101),
		SentAt:    fixedNow,
	}

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{"notice": s.notice.Link(100)}, nil)
	s.fetcher.EXPECT().Fetch(ctx, s.notice).Return(&domain.LatestPost{ID: 101, Title: "B"})
	gomock.InOrder(
		s.store.EXPECT().Save(ctx, domain.SeenState{"notice": s.notice.Link(101)}).Return(nil),
		s.announcer.EXPECT().Announce(ctx, want).Return(nil),
		s.publisher.EXPECT().Publish(ctx, want).Return(nil),
	)

	stats, err := s.poller.Poll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Announced)
	s.Equal(1, stats.Published)
	s.Equal(0, stats.Errors)
}

func (s *PollerTestSuite) TestPoll_LongTitleIsTruncated() {
	ctx := context.Background()

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{"notice": s.notice.Link(1)}, nil)
	s.fetcher.EXPECT().Fetch(ctx, s.notice).Return(&domain.LatestPost{ID: 2, Title: "abcdefghijklmnop"})
	s.store.EXPECT().Save(ctx, gomock.Any()).Return(nil)
	s.announcer.EXPECT().Announce(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, a domain.Announcement) error {
			s.Equal("abcdefghij…", a.Title)
			return nil
		},
	)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	_, err := s.poller.Poll(ctx)
	s.NoError(err)
}

func (s *PollerTestSuite) TestPoll_FetchFailureChangesNothing() {
	ctx := context.Background()

	var logs bytes.Buffer
	s.logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	poller := s.newPoller(s.publisher, s.notice)

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{"notice": s.notice.Link(100)}, nil)
	s.fetcher.EXPECT().Fetch(ctx, s.notice).Return(nil)

	stats, err := poller.Poll(ctx)

	s.NoError(err)
	s.Equal(1, stats.FetchFailures)
	s.Equal(0, stats.Unchanged)
	s.Equal(0, stats.Announced)

	out := logs.String()
	s.Contains(out, "level=WARN")
	s.Contains(out, `msg="no latest post this cycle"`)
	s.Contains(out, "board=notice")
}

func (s *PollerTestSuite) TestPoll_FailingBoardDoesNotStopOthers() {
	ctx := context.Background()
	poller := s.newPoller(nil, s.notice, s.free)

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{
		"notice": s.notice.Link(100),
		"free":   s.free.Link(5),
	}, nil)
	gomock.InOrder(
		s.fetcher.EXPECT().Fetch(ctx, s.notice).Return(nil),
		s.fetcher.EXPECT().Fetch(ctx, s.free).Return(&domain.LatestPost{ID: 6, Title: "new"}),
	)
	s.store.EXPECT().Save(ctx, domain.SeenState{
		"notice": s.notice.Link(100),
		"free":   s.free.Link(6),
	}).Return(nil)
	s.announcer.EXPECT().Announce(ctx, gomock.Any()).Return(nil)

	stats, err := poller.Poll(ctx)

	s.NoError(err)
	s.Equal(2, stats.Checked)
	s.Equal(1, stats.FetchFailures)
	s.Equal(1, stats.Announced)
}

func (s *PollerTestSuite) TestPoll_PanickingBoardIsRecovered() {
	ctx := context.Background()
	poller := s.newPoller(nil, s.notice, s.free)

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{}, nil)
	s.fetcher.EXPECT().Fetch(ctx, s.notice).DoAndReturn(
		func(context.Context, domain.BoardConfig) *domain.LatestPost { panic("parser exploded") },
	)
	s.fetcher.EXPECT().Fetch(ctx, s.free).Return(&domain.LatestPost{ID: 1})
	s.store.EXPECT().Save(ctx, domain.SeenState{"free": s.free.Link(1)}).Return(nil)

	stats, err := poller.Poll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Errors)
	s.Equal(1, stats.Seeded)
}

func (s *PollerTestSuite) TestPoll_AnnounceErrorIsCountedAndStateKept() {
	ctx := context.Background()
	poller := s.newPoller(s.publisher, s.notice, s.free)

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{
		"notice": s.notice.Link(1),
		"free":   s.free.Link(1),
	}, nil)
	s.fetcher.EXPECT().Fetch(ctx, s.notice).Return(&domain.LatestPost{ID: 2, Title: "x"})
	s.fetcher.EXPECT().Fetch(ctx, s.free).Return(&domain.LatestPost{ID: 1, Title: "y"})
	s.store.EXPECT().Save(ctx, gomock.Any()).Return(nil)
	s.announcer.EXPECT().Announce(ctx, gomock.Any()).Return(errors.New("missing permissions"))

	stats, err := poller.Poll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Errors)
	s.Equal(0, stats.Announced)
	s.Equal(1, stats.Unchanged)
}

func (s *PollerTestSuite) TestPoll_SaveErrorStillAnnounces() {
	ctx := context.Background()

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{"notice": s.notice.Link(1)}, nil)
	s.fetcher.EXPECT().Fetch(ctx, s.notice).Return(&domain.LatestPost{ID: 2, Title: "x"})
	s.store.EXPECT().Save(ctx, gomock.Any()).Return(errors.New("disk full"))
	s.announcer.EXPECT().Announce(ctx, gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("broker down"))

	stats, err := s.poller.Poll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Announced)
	s.Equal(0, stats.Published)
	s.Equal(1, stats.Errors)
}

func (s *PollerTestSuite) TestPoll_LoadErrorTreatsBoardsAsNew() {
	ctx := context.Background()

	s.store.EXPECT().Load(ctx).Return(nil, errors.New("db gone"))
	s.fetcher.EXPECT().Fetch(ctx, s.notice).Return(&domain.LatestPost{ID: 9})
	s.store.EXPECT().Save(ctx, domain.SeenState{"notice": s.notice.Link(9)}).Return(nil)

	stats, err := s.poller.Poll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Seeded)
}

func (s *PollerTestSuite) TestPoll_CancelledContextStops() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{}, nil)

	stats, err := s.poller.Poll(ctx)

	s.ErrorIs(err, context.Canceled)
	s.Equal(0, stats.Checked)
}

func (s *PollerTestSuite) TestPoll_RejectsOverlappingCycle() {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})

	s.store.EXPECT().Load(ctx).Return(domain.SeenState{"notice": s.notice.Link(1)}, nil)
	s.fetcher.EXPECT().Fetch(ctx, s.notice).DoAndReturn(
		func(context.Context, domain.BoardConfig) *domain.LatestPost {
			close(entered)
			<-release
			return &domain.LatestPost{ID: 1}
		},
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.poller.Poll(ctx)
		s.NoError(err)
	}()

	<-entered
	_, err := s.poller.Poll(ctx)
	s.ErrorIs(err, ErrCycleInProgress)

	close(release)
	wg.Wait()
}

// memStore is a StateStore that behaves like a persisted file across cycles.
type memStore struct {
	saved domain.SeenState
	saves int
}

func (m *memStore) Load(context.Context) (domain.SeenState, error) {
	return m.saved.Clone(), nil
}

func (m *memStore) Save(_ context.Context, state domain.SeenState) error {
	m.saves++
	m.saved = state.Clone()
	return nil
}

type recordingAnnouncer struct {
	sent []domain.Announcement
}

func (r *recordingAnnouncer) Announce(_ context.Context, a domain.Announcement) error {
	r.sent = append(r.sent, a)
	return nil
}

type staticFetcher map[string]*domain.LatestPost

func (f staticFetcher) Fetch(_ context.Context, board domain.BoardConfig) *domain.LatestPost {
	return f[board.Key]
}

func TestPoller_RepeatedCyclesAnnounceAtMostOnce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	board := domain.BoardConfig{Key: "notice", DisplayName: "Notice", LinkBase: "https://cafe.naver.com/hatopia"}
	store := &memStore{saved: domain.SeenState{}}
	announcer := &recordingAnnouncer{}
	fetcher := staticFetcher{"notice": {ID: 100, Title: "A"}}

	poller := NewPoller(store, fetcher, announcer, nil, logger, PollerConfig{Boards: []domain.BoardConfig{board}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := poller.Poll(ctx)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}
	if len(announcer.sent) != 0 {
		t.Fatalf("seeded board must not announce, got %d", len(announcer.sent))
	}
	if store.saves != 1 {
		t.Fatalf("expected exactly one save for the seed, got %d", store.saves)
	}

	fetcher["notice"] = &domain.LatestPost{ID: 101, Title: "B"}
	for i := 0; i < 3; i++ {
		if _, err := poller.Poll(ctx); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}
	if len(announcer.sent) != 1 {
		t.Fatalf("expected one announcement, got %d", len(announcer.sent))
	}
	if got := store.saved["notice"]; got != board.Link(101) {
		t.Fatalf("stored link = %q, want %q", got, board.Link(101))
	}
}
