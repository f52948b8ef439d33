package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ladder/internal/adapters/ranking"
	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/domain/model"
)

const lockKey = "test:recovery:lock"

func seedRepo(f *fixture, rows ...model.Player) {
	for _, p := range rows {
		So(f.repo.MemoryRepository.Save(context.Background(), p), ShouldBeNil)
	}
}

func TestService_NeedsRecovery(t *testing.T) {
	Convey("Given a leaderboard service", t, func() {
		ctx := context.Background()
		f := newFixture()

		Convey("Both stores empty needs no recovery", func() {
			needed, err := f.svc.NeedsRecovery(ctx)
			So(err, ShouldBeNil)
			So(needed, ShouldBeFalse)
		})

		Convey("An empty ranking over a populated repository needs recovery", func() {
			seedRepo(f, model.Player{PlayerID: "p1", Score: 10, UpdatedAt: f.clock.Now()})
			needed, err := f.svc.NeedsRecovery(ctx)
			So(err, ShouldBeNil)
			So(needed, ShouldBeTrue)
		})

		Convey("A populated ranking needs no recovery", func() {
			f.update("p1", 10)
			needed, err := f.svc.NeedsRecovery(ctx)
			So(err, ShouldBeNil)
			So(needed, ShouldBeFalse)
		})

		Convey("A failing repository probe is a repository error", func() {
			f.repo.setFailAll(errDown)
			_, err := f.svc.NeedsRecovery(ctx)
			So(errors.Is(err, service.ErrRepository), ShouldBeTrue)
		})

		Convey("A failing ranking count is a ranking error", func() {
			f.store.failOn("count", errDown)
			_, err := f.svc.NeedsRecovery(ctx)
			So(errors.Is(err, service.ErrRankingStore), ShouldBeTrue)
		})
	})
}

func TestService_Rebuild(t *testing.T) {
	Convey("Given a repository with stored players", t, func() {
		ctx := context.Background()
		f := newFixture(service.WithRebuildBatchSize(2), service.WithLock(lockKey, time.Minute))
		t0 := f.clock.Now()
		seedRepo(f,
			model.Player{PlayerID: "late", Score: 500, UpdatedAt: t0.Add(time.Second)},
			model.Player{PlayerID: "early", Score: 500, UpdatedAt: t0},
			model.Player{PlayerID: "low", Score: 100, UpdatedAt: t0},
			model.Player{PlayerID: "high", Score: 900, UpdatedAt: t0},
			model.Player{PlayerID: "undated", Score: 50},
		)

		Convey("When the ranking is rebuilt", func() {
			res, err := f.svc.Rebuild(ctx)

			Convey("Then every row is loaded in stored order", func() {
				So(err, ShouldBeNil)
				So(res.Processed, ShouldEqual, 5)
				So(res.Failed, ShouldEqual, 0)
				So(res.Contended, ShouldBeFalse)

				top, err := f.svc.TopPlayers(ctx, 10)
				So(err, ShouldBeNil)
				ids := make([]string, len(top))
				for i, p := range top {
					ids[i] = p.PlayerID
				}
				So(ids, ShouldResemble, []string{"high", "early", "late", "low", "undated"})
			})

			Convey("And the lock is released", func() {
				ok, err := f.store.AcquireLock(ctx, lockKey, "other", time.Minute)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When the ranking holds stale players", func() {
			f.update("stale", 1)
			_, err := f.svc.Rebuild(ctx)

			Convey("Then they are cleared", func() {
				So(err, ShouldBeNil)
				_, found, err := f.svc.GetRank(ctx, "stale")
				So(err, ShouldBeNil)
				So(found, ShouldBeFalse)
			})
		})

		Convey("When a score is written after the rows were read", func() {
			f.store.onBulkLoad(func() { f.update("low", 700) })
			res, err := f.svc.Rebuild(ctx)

			Convey("Then the newer score survives the load", func() {
				So(err, ShouldBeNil)
				So(res.Processed, ShouldEqual, 5)

				p, found, err := f.svc.GetRank(ctx, "low")
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(p.Score, ShouldEqual, 700)
				So(p.Rank, ShouldEqual, 2)

				n, _ := f.svc.TotalPlayers(ctx)
				So(n, ShouldEqual, 5)
			})
		})

		Convey("When another holder owns the lock", func() {
			ok, err := f.store.AcquireLock(ctx, lockKey, "other", time.Minute)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			res, err := f.svc.Rebuild(ctx)

			Convey("Then nothing runs and contention is reported", func() {
				So(err, ShouldBeNil)
				So(res.Contended, ShouldBeTrue)
				n, _ := f.svc.TotalPlayers(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the repository read fails", func() {
			f.update("current", 7)
			f.repo.setFailAll(errDown)
			_, err := f.svc.Rebuild(ctx)

			Convey("Then the ranking is untouched and the lock released", func() {
				So(errors.Is(err, service.ErrRepository), ShouldBeTrue)
				p, found, err := f.svc.GetRank(ctx, "current")
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(p.Score, ShouldEqual, 7)

				ok, err := f.store.AcquireLock(ctx, lockKey, "other", time.Minute)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When bulk loading fails", func() {
			f.store.failOn("bulk_load", errDown)
			_, err := f.svc.Rebuild(ctx)

			Convey("Then a ranking error is returned", func() {
				So(errors.Is(err, service.ErrRankingStore), ShouldBeTrue)
				So(errors.Is(err, errDown), ShouldBeTrue)
			})
		})

		Convey("When the lock cannot be acquired", func() {
			f.store.failOn("lock", errDown)
			res, err := f.svc.Rebuild(ctx)

			Convey("Then it is an error, not contention", func() {
				So(errors.Is(err, service.ErrRankingStore), ShouldBeTrue)
				So(res.Contended, ShouldBeFalse)
			})
		})

		Convey("When releasing the lock fails", func() {
			f.store.failOn("release", errDown)
			res, err := f.svc.Rebuild(ctx)

			Convey("Then the rebuild still succeeds", func() {
				So(err, ShouldBeNil)
				So(res.Processed, ShouldEqual, 5)
			})
		})
	})

	Convey("Given an empty repository", t, func() {
		f := newFixture()
		res, err := f.svc.Rebuild(context.Background())

		Convey("Then a rebuild loads nothing", func() {
			So(err, ShouldBeNil)
			So(res.Processed, ShouldEqual, 0)
		})
	})
}

func TestService_Sync(t *testing.T) {
	Convey("Given a populated ranking", t, func() {
		ctx := context.Background()
		f := newFixture(service.WithLock(lockKey, time.Minute))
		f.update("a", 30)
		f.clock.Advance(time.Second)
		f.update("b", 20)
		f.clock.Advance(time.Second)
		f.update("c", 10)
		So(f.repo.Clear(ctx), ShouldBeNil)

		Convey("When synced", func() {
			res, err := f.svc.Sync(ctx)

			Convey("Then the repository receives every player with its update time", func() {
				So(err, ShouldBeNil)
				So(res.Processed, ShouldEqual, 3)
				So(res.Failed, ShouldEqual, 0)

				row, err := f.repo.FindByID(ctx, "b")
				So(err, ShouldBeNil)
				So(row.Score, ShouldEqual, 20)
				So(row.UpdatedAt.Equal(f.clock.Now().Add(-time.Second)), ShouldBeTrue)
			})
		})

		Convey("When the repository already holds a newer row", func() {
			newer := model.Player{PlayerID: "a", Score: 77, UpdatedAt: f.clock.Now().Add(time.Minute)}
			So(f.repo.MemoryRepository.Save(ctx, newer), ShouldBeNil)
			res, err := f.svc.Sync(ctx)

			Convey("Then the older ranked value does not replace it", func() {
				So(err, ShouldBeNil)
				So(res.Processed, ShouldEqual, 3)
				row, err := f.repo.FindByID(ctx, "a")
				So(err, ShouldBeNil)
				So(row.Score, ShouldEqual, 77)
			})
		})

		Convey("When one player fails to save", func() {
			f.repo.failSaveFor("b", errDown)
			res, err := f.svc.Sync(ctx)

			Convey("Then the rest are still synced", func() {
				So(err, ShouldBeNil)
				So(res.Processed, ShouldEqual, 2)
				So(res.Failed, ShouldEqual, 1)
				_, err := f.repo.FindByID(ctx, "c")
				So(err, ShouldBeNil)
			})
		})

		Convey("When the ranking cannot be read", func() {
			f.store.failOn("all", errDown)
			_, err := f.svc.Sync(ctx)

			Convey("Then a ranking error is returned", func() {
				So(errors.Is(err, service.ErrRankingStore), ShouldBeTrue)
			})
		})

		Convey("When another holder owns the lock", func() {
			_, err := f.store.AcquireLock(ctx, lockKey, "other", time.Minute)
			So(err, ShouldBeNil)
			res, err := f.svc.Sync(ctx)

			Convey("Then it is skipped", func() {
				So(err, ShouldBeNil)
				So(res.Contended, ShouldBeTrue)
				So(res.Processed, ShouldEqual, 0)
			})

			Convey("And a forced unlock frees it", func() {
				So(f.svc.ForceUnlock(ctx), ShouldBeNil)
				res, err := f.svc.Sync(ctx)
				So(err, ShouldBeNil)
				So(res.Processed, ShouldEqual, 3)
			})
		})
	})
}

func TestService_SyncRebuildRoundTrip(t *testing.T) {
	Convey("Given players with tied scores", t, func() {
		ctx := context.Background()
		f := newFixture()
		f.update("first", 100)
		f.clock.Advance(200 * time.Millisecond)
		f.update("second", 100)
		f.update("third", 50)

		before, err := f.svc.TopPlayers(ctx, 10)
		So(err, ShouldBeNil)

		Convey("When synced, cleared and rebuilt", func() {
			_, err := f.svc.Sync(ctx)
			So(err, ShouldBeNil)
			So(f.store.Clear(ctx), ShouldBeNil)

			needed, err := f.svc.NeedsRecovery(ctx)
			So(err, ShouldBeNil)
			So(needed, ShouldBeTrue)

			res, err := f.svc.Recover(ctx)

			Convey("Then the ranking is identical", func() {
				So(err, ShouldBeNil)
				So(res.Processed, ShouldEqual, 3)
				after, err := f.svc.TopPlayers(ctx, 10)
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)
			})
		})

		Convey("When recovery is not needed", func() {
			res, err := f.svc.Recover(ctx)

			Convey("Then nothing is rebuilt", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, service.RecoveryResult{})
			})
		})
	})
}

func TestService_RunPeriodicSync(t *testing.T) {
	Convey("Given a periodic sync", t, func() {
		f := newFixture()
		f.update("p1", 10)
		So(f.repo.Clear(context.Background()), ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			f.svc.RunPeriodicSync(ctx, 10*time.Millisecond)
			close(done)
		}()

		Convey("Then the repository is eventually populated and the loop stops on cancel", func() {
			deadline := time.Now().Add(2 * time.Second)
			var err error
			for time.Now().Before(deadline) {
				if _, err = f.repo.FindByID(context.Background(), "p1"); err == nil {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			So(err, ShouldBeNil)

			cancel()
			select {
			case <-done:
			case <-time.After(time.Second):
				So("periodic sync did not stop", ShouldBeEmpty)
			}
		})
	})
}

var _ ranking.LockingStore = (*flakyStore)(nil)
