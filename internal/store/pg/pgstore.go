package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"libris.org/internal/ids"
	"libris.org/internal/library"
)

// Store implements library.Service on PostgreSQL. Borrow relies on a
// conditional decrement plus affected-row check instead of row locks, so two
// concurrent borrows of the last copy cannot both succeed.
type Store struct {
	db         *sql.DB
	loanPeriod time.Duration
	now        func() time.Time
}

var _ library.Service = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithLoanPeriod overrides the default 7 day loan period.
func WithLoanPeriod(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.loanPeriod = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db, opts...), nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		loanPeriod: library.DefaultLoanPeriod,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) CreateBook(ctx context.Context, spec library.BookSpec) (library.Book, error) {
	if err := library.ValidateBookSpec(spec); err != nil {
		return library.Book{}, err
	}
	id := ids.New()
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into books(id, title, author, genre, rating, cover_color, cover_url,
			description, summary, total_copies, available_copies, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10,$11)
	`, id, spec.Title, spec.Author, spec.Genre, spec.Rating, spec.CoverColor, spec.CoverURL,
		spec.Description, spec.Summary, spec.TotalCopies, now)
	if err != nil {
		return library.Book{}, err
	}
	return library.Book{
		ID:              id,
		Title:           spec.Title,
		Author:          spec.Author,
		Genre:           spec.Genre,
		Rating:          spec.Rating,
		CoverColor:      spec.CoverColor,
		CoverURL:        spec.CoverURL,
		Description:     spec.Description,
		Summary:         spec.Summary,
		TotalCopies:     spec.TotalCopies,
		AvailableCopies: spec.TotalCopies,
		CreatedAt:       now,
	}, nil
}

const bookColumns = `id, title, author, genre, rating, cover_color, cover_url,
	description, summary, total_copies, available_copies, created_at`

func (s *Store) GetBook(ctx context.Context, id string) (library.Book, error) {
	row := s.db.QueryRowContext(ctx, `select `+bookColumns+` from books where id=$1`, id)
	return scanBook(row)
}

func (s *Store) ListBooks(ctx context.Context, limit int) ([]library.Book, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+bookColumns+` from books order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []library.Book
	for rows.Next() {
		b, err := scanBookRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// Borrow applies the ledger insert and the counter decrement as one
// transaction. The decrement is guarded by `available_copies > 0`; when it
// matches no rows the book is either missing or out of copies.
func (s *Store) Borrow(ctx context.Context, userID, bookID string) (library.Loan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return library.Loan{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update books set available_copies = available_copies - 1
		where id=$1 and available_copies > 0
	`, bookID)
	if err != nil {
		return library.Loan{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return library.Loan{}, err
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`select exists(select 1 from books where id=$1)`, bookID).Scan(&exists); err != nil {
			return library.Loan{}, err
		}
		if !exists {
			return library.Loan{}, library.ErrBookNotFound
		}
		return library.Loan{}, library.ErrBookUnavailable
	}

	now := s.now().UTC()
	loan := library.Loan{
		ID:         ids.New(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: now,
		DueAt:      now.Add(s.loanPeriod),
		Status:     library.LoanBorrowed,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into loans(id, user_id, book_id, borrowed_at, due_at, status)
		values ($1,$2,$3,$4,$5,$6)
	`, loan.ID, loan.UserID, loan.BookID, loan.BorrowedAt, loan.DueAt, string(loan.Status)); err != nil {
		return library.Loan{}, err
	}

	if err := tx.Commit(); err != nil {
		return library.Loan{}, err
	}
	return loan, nil
}

func (s *Store) Return(ctx context.Context, loanID string) (library.Loan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return library.Loan{}, err
	}
	defer func() { _ = tx.Rollback() }()

	loan, err := scanLoan(tx.QueryRowContext(ctx, `
		select id, user_id, book_id, borrowed_at, due_at, returned_at, status
		from loans where id=$1 for update
	`, loanID))
	if err != nil {
		return library.Loan{}, err
	}
	if loan.Status == library.LoanReturned {
		return library.Loan{}, library.ErrLoanAlreadyClosed
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		update loans set status=$2, returned_at=$3 where id=$1
	`, loanID, string(library.LoanReturned), now); err != nil {
		return library.Loan{}, err
	}
	// The increment is capped at total_copies; a release can never create
	// more available copies than exist.
	if _, err := tx.ExecContext(ctx, `
		update books set available_copies = available_copies + 1
		where id=$1 and available_copies < total_copies
	`, loan.BookID); err != nil {
		return library.Loan{}, err
	}

	if err := tx.Commit(); err != nil {
		return library.Loan{}, err
	}
	loan.Status = library.LoanReturned
	loan.ReturnedAt = &now
	return loan, nil
}

func (s *Store) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update loans set status=$2
		where status=$3 and due_at < $1
	`, asOf, string(library.LoanOverdue), string(library.LoanBorrowed))
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) GetLoan(ctx context.Context, id string) (library.Loan, error) {
	return scanLoan(s.db.QueryRowContext(ctx, `
		select id, user_id, book_id, borrowed_at, due_at, returned_at, status
		from loans where id=$1
	`, id))
}

func (s *Store) ListLoansByUser(ctx context.Context, userID string, limit int) ([]library.Loan, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, book_id, borrowed_at, due_at, returned_at, status
		from loans where user_id=$1 order by borrowed_at desc limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []library.Loan
	for rows.Next() {
		var (
			loan     library.Loan
			returned sql.NullTime
			status   string
		)
		if err := rows.Scan(&loan.ID, &loan.UserID, &loan.BookID, &loan.BorrowedAt,
			&loan.DueAt, &returned, &status); err != nil {
			return nil, err
		}
		if returned.Valid {
			t := returned.Time
			loan.ReturnedAt = &t
		}
		loan.Status = library.LoanStatus(status)
		res = append(res, loan)
	}
	return res, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (library.Book, error) {
	var b library.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.Rating, &b.CoverColor,
		&b.CoverURL, &b.Description, &b.Summary, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Book{}, library.ErrBookNotFound
	}
	if err != nil {
		return library.Book{}, err
	}
	return b, nil
}

func scanBookRows(rows *sql.Rows) (library.Book, error) {
	var b library.Book
	err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.Rating, &b.CoverColor,
		&b.CoverURL, &b.Description, &b.Summary, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt)
	return b, err
}

func scanLoan(row rowScanner) (library.Loan, error) {
	var (
		loan     library.Loan
		returned sql.NullTime
		status   string
	)
	err := row.Scan(&loan.ID, &loan.UserID, &loan.BookID, &loan.BorrowedAt,
		&loan.DueAt, &returned, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Loan{}, library.ErrLoanNotFound
	}
	if err != nil {
		return library.Loan{}, err
	}
	if returned.Valid {
		t := returned.Time
		loan.ReturnedAt = &t
	}
	loan.Status = library.LoanStatus(status)
	return loan, nil
}
