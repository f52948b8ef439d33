package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/scoring"
	"github.com/okian/ladder/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var errDown = errors.New("connection refused")

type fixture struct {
	clock *fakeClock
	store *flakyStore
	repo  *flakyRepo
	svc   *service.Service
}

func newFixture(opts ...service.Option) *fixture {
	f := &fixture{clock: newFakeClock(), repo: newFlakyRepo()}
	f.store = newFlakyStore()
	base := []service.Option{service.WithClock(f.clock.Now), service.WithMaxLimit(1000)}
	f.svc = service.New(f.store, f.repo, append(base, opts...)...)
	return f
}

func (f *fixture) update(id string, score int64) service.UpdateResult {
	res, err := f.svc.UpdateScore(context.Background(), id, score)
	So(err, ShouldBeNil)
	return res
}

func TestService_UpdateScore(t *testing.T) {
	Convey("Given a leaderboard service", t, func() {
		ctx := context.Background()
		f := newFixture()

		Convey("When a score is updated", func() {
			res := f.update("p1", 500)

			Convey("Then the rank lookup returns the same score at rank 1", func() {
				p, found, err := f.svc.GetRank(ctx, "p1")
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(p.Score, ShouldEqual, 500)
				So(p.Rank, ShouldEqual, 1)
			})

			Convey("And the write-through persisted it", func() {
				So(res.Persisted(), ShouldBeTrue)
				row, err := f.repo.FindByID(ctx, "p1")
				So(err, ShouldBeNil)
				So(row.Score, ShouldEqual, 500)
				So(row.UpdatedAt.Equal(f.clock.Now()), ShouldBeTrue)
			})
		})

		Convey("When the input is invalid", func() {
			cases := []struct {
				id    string
				score int64
			}{
				{"", 10},
				{strings.Repeat("x", model.MaxPlayerIDLength+1), 10},
				{strings.Repeat("😀", 128), 10},
				{"p", -1},
				{"p", scoring.MaxRawScore + 1},
			}

			Convey("Then every update is rejected without touching the stores", func() {
				for _, c := range cases {
					_, err := f.svc.UpdateScore(ctx, c.id, c.score)
					So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				}
				n, err := f.svc.TotalPlayers(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				rows, _ := f.repo.FindAllOrderedByScore(ctx, 0)
				So(rows, ShouldBeEmpty)
			})

			Convey("But identities at the length bound are accepted", func() {
				_, err := f.svc.UpdateScore(ctx, strings.Repeat("é", model.MaxPlayerIDLength), 1)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the ranking store fails", func() {
			f.store.failOn("upsert", errDown)
			_, err := f.svc.UpdateScore(ctx, "p1", 10)

			Convey("Then the failure is surfaced and nothing is persisted", func() {
				So(errors.Is(err, service.ErrRankingStore), ShouldBeTrue)
				So(errors.Is(err, errDown), ShouldBeTrue)
				_, ferr := f.repo.FindByID(ctx, "p1")
				So(ferr, ShouldNotBeNil)
			})
		})

		Convey("When the repository fails on write-through", func() {
			f.repo.setFailAll(errDown)
			res, err := f.svc.UpdateScore(ctx, "p1", 10)

			Convey("Then the update still succeeds with a soft failure", func() {
				So(err, ShouldBeNil)
				So(res.Persisted(), ShouldBeFalse)
				So(errors.Is(res.PersistErr, service.ErrPersist), ShouldBeTrue)

				p, found, err := f.svc.GetRank(ctx, "p1")
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(p.Score, ShouldEqual, 10)
			})
		})

		Convey("When the repository holds a different score", func() {
			f.update("p1", 10)
			So(f.repo.MemoryRepository.Save(ctx, model.Player{PlayerID: "p1", Score: 99, UpdatedAt: f.clock.Now().Add(time.Hour)}), ShouldBeNil)

			Convey("Then the ranking value wins", func() {
				p, _, err := f.svc.GetRank(ctx, "p1")
				So(err, ShouldBeNil)
				So(p.Score, ShouldEqual, 10)
			})
		})

		Convey("When the same update is applied twice", func() {
			f.update("a", 100)
			f.clock.Advance(time.Second)
			f.update("b", 100)
			before, _, _ := f.svc.GetRank(ctx, "a")
			f.clock.Advance(time.Second)
			f.update("a", 100)

			Convey("Then rank and score are unchanged", func() {
				after, _, err := f.svc.GetRank(ctx, "a")
				So(err, ShouldBeNil)
				So(after.Rank, ShouldEqual, before.Rank)
				So(after.Score, ShouldEqual, before.Score)
				So(after.Rank, ShouldEqual, 1)
			})
		})
	})
}

func TestService_Ordering(t *testing.T) {
	Convey("Given a leaderboard service", t, func() {
		ctx := context.Background()
		f := newFixture(service.WithMaxLimit(3))

		Convey("When four players are inserted", func() {
			f.update("player1", 300)
			f.update("player2", 200)
			f.update("player3", 100)
			f.update("player4", 250)

			Convey("Then the top three come back best first with contiguous ranks", func() {
				top, err := f.svc.TopPlayers(ctx, 3)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)
				So(top[0].PlayerID, ShouldEqual, "player1")
				So(top[0].Score, ShouldEqual, 300)
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].PlayerID, ShouldEqual, "player4")
				So(top[1].Score, ShouldEqual, 250)
				So(top[1].Rank, ShouldEqual, 2)
				So(top[2].PlayerID, ShouldEqual, "player2")
				So(top[2].Score, ShouldEqual, 200)
				So(top[2].Rank, ShouldEqual, 3)
			})

			Convey("And out of range limits are clamped", func() {
				top, err := f.svc.TopPlayers(ctx, 0)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)

				top, err = f.svc.TopPlayers(ctx, 5000)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)
			})

			Convey("And the total counts every player", func() {
				n, err := f.svc.TotalPlayers(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 4)
			})
		})

		Convey("When two players reach the same score 100ms apart", func() {
			f.update("a", 1000)
			f.clock.Advance(100 * time.Millisecond)
			f.update("b", 1000)

			Convey("Then the earlier one ranks strictly higher", func() {
				a, _, err := f.svc.GetRank(ctx, "a")
				So(err, ShouldBeNil)
				b, _, err := f.svc.GetRank(ctx, "b")
				So(err, ShouldBeNil)
				So(a.Score, ShouldEqual, 1000)
				So(b.Score, ShouldEqual, 1000)
				So(a.Rank, ShouldBeLessThan, b.Rank)
			})
		})

		Convey("When the store is empty", func() {
			top, err := f.svc.TopPlayers(ctx, 10)

			Convey("Then no players are returned", func() {
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)
			})

			Convey("And an unknown player is absent, not an error", func() {
				_, found, err := f.svc.GetRank(ctx, "ghost")
				So(err, ShouldBeNil)
				So(found, ShouldBeFalse)
			})
		})

		Convey("When a store call outlives the timeout", func() {
			slow := newFixture(service.WithStoreTimeout(20 * time.Millisecond))
			slow.store.failOn("rank", errBlock)
			_, found, err := slow.svc.GetRank(ctx, "p1")

			Convey("Then it is an infrastructure failure, not a missing player", func() {
				So(found, ShouldBeFalse)
				So(errors.Is(err, service.ErrRankingStore), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}

func TestService_UpdateScoresBatch(t *testing.T) {
	Convey("Given a batch with one invalid entry", t, func() {
		ctx := context.Background()
		f := newFixture()

		res, err := f.svc.UpdateScoresBatch(ctx, map[string]int64{
			"good1": 10,
			"bad":   -5,
			"good2": 20,
		})

		Convey("Then valid entries apply and the failure is reported", func() {
			So(len(res.Applied), ShouldEqual, 2)
			So(len(res.Failed), ShouldEqual, 1)
			So(errors.Is(res.Failed["bad"], model.ErrValidation), ShouldBeTrue)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			n, _ := f.svc.TotalPlayers(ctx)
			So(n, ShouldEqual, 2)
		})
	})

	Convey("Given a fully valid batch", t, func() {
		f := newFixture()
		res, err := f.svc.UpdateScoresBatch(context.Background(), map[string]int64{"x": 1, "y": 2})

		Convey("Then no error is returned", func() {
			So(err, ShouldBeNil)
			So(res.Failed, ShouldBeEmpty)
			So(res.Applied[0].PlayerID, ShouldEqual, "x")
		})
	})
}

func TestService_GetStats(t *testing.T) {
	Convey("Given a service with players", t, func() {
		f := newFixture()
		f.update("p1", 1)

		stats := f.svc.GetStats(context.Background())

		Convey("Then the stats report the total", func() {
			So(stats["totalPlayers"], ShouldEqual, int64(1))
			So(stats["lockKey"], ShouldEqual, "leaderboard:recovery:lock")
		})
	})
}
