package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"libris.org/internal/library"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewStore(db, WithClock(func() time.Time { return now })), mock
}

func TestBorrowCommitsDecrementAndLoanTogether(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update books set available_copies = available_copies - 1").
		WithArgs("book-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into loans").
		WithArgs(sqlmock.AnyArg(), "user-1", "book-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "BORROWED").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	loan, err := store.Borrow(context.Background(), "user-1", "book-1")
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if loan.Status != library.LoanBorrowed {
		t.Fatalf("unexpected status: %s", loan.Status)
	}
	if !loan.DueAt.Equal(loan.BorrowedAt.Add(library.DefaultLoanPeriod)) {
		t.Fatalf("unexpected due date: %v", loan.DueAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBorrowUnavailableWhenDecrementMatchesNothing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update books set available_copies = available_copies - 1").
		WithArgs("book-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := store.Borrow(context.Background(), "user-1", "book-1")
	if !errors.Is(err, library.ErrBookUnavailable) {
		t.Fatalf("expected ErrBookUnavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBorrowUnknownBook(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update books set available_copies = available_copies - 1").
		WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := store.Borrow(context.Background(), "user-1", "missing")
	if !errors.Is(err, library.ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBorrowRollsBackWhenLoanInsertFails(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update books set available_copies = available_copies - 1").
		WithArgs("book-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into loans").
		WithArgs(sqlmock.AnyArg(), "user-1", "book-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "BORROWED").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := store.Borrow(context.Background(), "user-1", "book-1"); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReturnClosesLoanAndReleasesCopy(t *testing.T) {
	store, mock := newMockStore(t)

	borrowed := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	loanRows := sqlmock.NewRows([]string{
		"id", "user_id", "book_id", "borrowed_at", "due_at", "returned_at", "status",
	}).AddRow("loan-1", "user-1", "book-1", borrowed, borrowed.Add(library.DefaultLoanPeriod), nil, "BORROWED")

	mock.ExpectBegin()
	mock.ExpectQuery("select id, user_id, book_id").WithArgs("loan-1").WillReturnRows(loanRows)
	mock.ExpectExec("update loans set status").
		WithArgs("loan-1", "RETURNED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update books set available_copies = available_copies \\+ 1").
		WithArgs("book-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	loan, err := store.Return(context.Background(), "loan-1")
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if loan.Status != library.LoanReturned || loan.ReturnedAt == nil {
		t.Fatalf("unexpected loan: %+v", loan)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReturnAlreadyClosed(t *testing.T) {
	store, mock := newMockStore(t)

	borrowed := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	returned := borrowed.Add(48 * time.Hour)
	loanRows := sqlmock.NewRows([]string{
		"id", "user_id", "book_id", "borrowed_at", "due_at", "returned_at", "status",
	}).AddRow("loan-1", "user-1", "book-1", borrowed, borrowed.Add(library.DefaultLoanPeriod), returned, "RETURNED")

	mock.ExpectBegin()
	mock.ExpectQuery("select id, user_id, book_id").WithArgs("loan-1").WillReturnRows(loanRows)
	mock.ExpectRollback()

	if _, err := store.Return(context.Background(), "loan-1"); !errors.Is(err, library.ErrLoanAlreadyClosed) {
		t.Fatalf("expected ErrLoanAlreadyClosed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkOverdueCountsRows(t *testing.T) {
	store, mock := newMockStore(t)

	asOf := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("update loans set status").
		WithArgs(asOf, "OVERDUE", "BORROWED").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.MarkOverdue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("MarkOverdue: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 loans flagged, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateBookValidatesBeforeWrite(t *testing.T) {
	store, mock := newMockStore(t)
	// No expectations: an invalid spec must never reach the database.
	spec := library.BookSpec{Title: "x", TotalCopies: 0}
	if _, err := store.CreateBook(context.Background(), spec); !errors.Is(err, library.ErrInvalidBook) {
		t.Fatalf("expected ErrInvalidBook, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database traffic: %v", err)
	}
}
