package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/booklend/internal/adapters/repository"
	"github.com/okian/booklend/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func seed(s *Store, books []model.Book, members []model.Member) {
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		for i := range books {
			if err := tx.InsertBook(ctx, &books[i]); err != nil {
				return err
			}
		}
		for i := range members {
			if err := tx.InsertMember(ctx, &members[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		panic(err)
	}
}

func TestStoreUnitOfWork(t *testing.T) {
	Convey("Given a store with one book and one member", t, func() {
		ctx := context.Background()
		s := New()
		seed(s,
			[]model.Book{{Title: "Dune", Author: "Herbert", ISBN: "isbn-1", TotalCopies: 2, AvailableCopies: 2}},
			[]model.Member{{Name: "Ann", Email: "ann@example.com"}})

		Convey("When a unit of work fails after writing", func() {
			boom := errors.New("boom")
			err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				b, err := tx.LockBook(ctx, 1)
				So(err, ShouldBeNil)
				b.AvailableCopies = 0
				So(tx.UpdateBook(ctx, b), ShouldBeNil)

				inTx, _ := tx.FindBook(ctx, 1)
				So(inTx.AvailableCopies, ShouldEqual, 0)
				return boom
			})

			Convey("Then nothing is applied and the lock is released", func() {
				So(err, ShouldEqual, boom)
				_ = s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					b, err := tx.LockBook(ctx, 1)
					So(err, ShouldBeNil)
					So(b.AvailableCopies, ShouldEqual, 2)
					return nil
				})
			})
		})

		Convey("When an absent row is read", func() {
			_ = s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				_, errBook := tx.LockBook(ctx, 99)
				_, errMember := tx.FindMember(ctx, 99)
				_, errLoan := tx.FindActiveLoan(ctx, 99)

				Convey("Then it fails with not found", func() {
					So(errors.Is(errBook, model.ErrNotFound), ShouldBeTrue)
					So(errBook.Error(), ShouldEqual, "Book not found: 99")
					So(errors.Is(errMember, model.ErrNotFound), ShouldBeTrue)
					So(errors.Is(errLoan, model.ErrNotFound), ShouldBeTrue)
				})
				return nil
			})
		})

		Convey("When a duplicate ISBN or email is inserted", func() {
			errBook := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				return tx.InsertBook(ctx, &model.Book{Title: "x", Author: "y", ISBN: "isbn-1"})
			})
			errMember := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				return tx.InsertMember(ctx, &model.Member{Name: "Bob", Email: "ann@example.com"})
			})

			Convey("Then both conflict", func() {
				So(errors.Is(errBook, model.ErrConflict), ShouldBeTrue)
				So(errors.Is(errMember, model.ErrConflict), ShouldBeTrue)
			})
		})

		Convey("When a book with loans is deleted", func() {
			_ = s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				return tx.InsertLoan(ctx, model.NewLoan(1, 1, time.Now(), 14))
			})
			err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				return tx.DeleteBook(ctx, 1)
			})

			Convey("Then the reference blocks the delete", func() {
				So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
			})
		})

		Convey("When a second unit of work waits on a held book lock", func() {
			locked := make(chan struct{})
			release := make(chan struct{})
			done := make(chan error, 1)

			go func() {
				done <- s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					if _, err := tx.LockBook(ctx, 1); err != nil {
						return err
					}
					close(locked)
					<-release
					return nil
				})
			}()
			<-locked

			waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			err := s.RunInTx(waitCtx, func(ctx context.Context, tx repository.Tx) error {
				_, err := tx.LockBook(ctx, 1)
				return err
			})
			close(release)

			Convey("Then it gives up when its context ends", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(<-done, ShouldBeNil)
			})
		})

		Convey("When a member is deleted while a borrow is still uncommitted", func() {
			inserted := make(chan struct{})
			release := make(chan struct{})
			done := make(chan error, 1)

			go func() {
				done <- s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					if _, err := tx.FindMember(ctx, 1); err != nil {
						return err
					}
					if _, err := tx.LockBook(ctx, 1); err != nil {
						return err
					}
					if err := tx.InsertLoan(ctx, model.NewLoan(1, 1, time.Now(), 14)); err != nil {
						return err
					}
					close(inserted)
					<-release
					return nil
				})
			}()
			<-inserted

			deleteErr := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				return tx.DeleteMember(ctx, 1)
			})
			close(release)
			borrowErr := <-done

			Convey("Then the borrow conflicts and leaves no orphan loan", func() {
				So(deleteErr, ShouldBeNil)
				So(errors.Is(borrowErr, model.ErrConflict), ShouldBeTrue)
				So(borrowErr.Error(), ShouldEqual, "Member 1 no longer exists")
				s.mu.RLock()
				defer s.mu.RUnlock()
				So(s.loans, ShouldBeEmpty)
				So(s.members, ShouldBeEmpty)
			})
		})
	})
}

func TestStoreOverdueMembers(t *testing.T) {
	Convey("Given members with overdue, on-time and returned loans", t, func() {
		ctx := context.Background()
		s := New()
		seed(s,
			[]model.Book{{Title: "A", Author: "a", ISBN: "a", TotalCopies: 10, AvailableCopies: 10}},
			[]model.Member{
				{Name: "Ann", Email: "ann@x"},
				{Name: "Bob", Email: "bob@x"},
				{Name: "Cid", Email: "cid@x"},
				{Name: "Dee", Email: "dee@x"},
			})

		asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		past := asOf.AddDate(0, 0, -30)
		err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			for _, memberID := range []int64{1, 1, 2, 2, 3} {
				if err := tx.InsertLoan(ctx, model.NewLoan(1, memberID, past, 14)); err != nil {
					return err
				}
			}
			if err := tx.InsertLoan(ctx, model.NewLoan(1, 4, asOf, 14)); err != nil {
				return err
			}
			returned := model.NewLoan(1, 4, past, 14)
			_ = returned.MarkReturned(past.AddDate(0, 0, 1))
			return tx.InsertLoan(ctx, returned)
		})
		So(err, ShouldBeNil)

		Convey("When ranking with a generous limit", func() {
			rows, err := s.OverdueMembers(ctx, asOf, 10)

			Convey("Then ties share rank 1 and the next count gets rank 2", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)
				So(rows[0].MemberID, ShouldEqual, 1)
				So(rows[0].OverdueCount, ShouldEqual, 2)
				So(rows[0].Rank, ShouldEqual, 1)
				So(rows[1].MemberID, ShouldEqual, 2)
				So(rows[1].Rank, ShouldEqual, 1)
				So(rows[2].MemberID, ShouldEqual, 3)
				So(rows[2].OverdueCount, ShouldEqual, 1)
				So(rows[2].Rank, ShouldEqual, 2)
				So(rows[2].Email, ShouldEqual, "cid@x")
			})
		})

		Convey("When the limit truncates", func() {
			rows, _ := s.OverdueMembers(ctx, asOf, 1)
			So(len(rows), ShouldEqual, 1)

			empty, _ := s.OverdueMembers(ctx, asOf, 0)
			So(empty, ShouldBeEmpty)
		})
	})
}
