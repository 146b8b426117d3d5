package library

import (
	"context"
	"sort"
	"sync"
	"time"

	"libris.org/internal/ids"
)

// Service defines inventory and lending operations.
type Service interface {
	CreateBook(ctx context.Context, spec BookSpec) (Book, error)
	GetBook(ctx context.Context, id string) (Book, error)
	ListBooks(ctx context.Context, limit int) ([]Book, error)
	Borrow(ctx context.Context, userID, bookID string) (Loan, error)
	Return(ctx context.Context, loanID string) (Loan, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
	GetLoan(ctx context.Context, id string) (Loan, error)
	ListLoansByUser(ctx context.Context, userID string, limit int) ([]Loan, error)
}

// InMemory implements Service with in-process concurrency safety.
// The single mutex serializes every borrow against the shared copy counts,
// which gives the exactly-one-winner guarantee without row locking.
type InMemory struct {
	mu         sync.RWMutex
	books      map[string]*Book
	loans      map[string]*Loan
	loanPeriod time.Duration
	now        func() time.Time
}

// InMemoryOption configures InMemory.
type InMemoryOption func(*InMemory)

// WithLoanPeriod overrides the default 7 day loan period.
func WithLoanPeriod(d time.Duration) InMemoryOption {
	return func(s *InMemory) {
		if d > 0 {
			s.loanPeriod = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) InMemoryOption {
	return func(s *InMemory) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewInMemory creates an empty library.
func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		books:      make(map[string]*Book),
		loans:      make(map[string]*Loan),
		loanPeriod: DefaultLoanPeriod,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) CreateBook(ctx context.Context, spec BookSpec) (Book, error) {
	if err := ValidateBookSpec(spec); err != nil {
		return Book{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	book := &Book{
		ID:              ids.New(),
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
		CreatedAt:       s.now().UTC(),
	}
	s.books[book.ID] = book
	return *book, nil
}

func (s *InMemory) GetBook(ctx context.Context, id string) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.books[id]
	if !ok {
		return Book{}, ErrBookNotFound
	}
	return *book, nil
}

func (s *InMemory) ListBooks(ctx context.Context, limit int) ([]Book, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Book, 0, len(s.books))
	for _, b := range s.books {
		res = append(res, *b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// Borrow performs the check-and-decrement and the loan append under one lock,
// so no observer can see a loan without its matching decrement.
func (s *InMemory) Borrow(ctx context.Context, userID, bookID string) (Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[bookID]
	if !ok {
		return Loan{}, ErrBookNotFound
	}
	if book.AvailableCopies <= 0 {
		return Loan{}, ErrBookUnavailable
	}

	now := s.now().UTC()
	loan := &Loan{
		ID:         ids.New(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: now,
		DueAt:      now.Add(s.loanPeriod),
		Status:     LoanBorrowed,
	}
	book.AvailableCopies--
	s.loans[loan.ID] = loan
	return *loan, nil
}

// Return closes a loan and releases its copy. Overdue loans return normally.
func (s *InMemory) Return(ctx context.Context, loanID string) (Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok {
		return Loan{}, ErrLoanNotFound
	}
	if loan.Status == LoanReturned {
		return Loan{}, ErrLoanAlreadyClosed
	}
	book, ok := s.books[loan.BookID]
	if !ok {
		return Loan{}, ErrBookNotFound
	}

	now := s.now().UTC()
	loan.Status = LoanReturned
	loan.ReturnedAt = &now
	if book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
	}
	return *loan, nil
}

// MarkOverdue flips every open loan past its due date to OVERDUE and reports
// how many were touched. Copies stay checked out until the loan is returned.
func (s *InMemory) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, loan := range s.loans {
		if loan.Status == LoanBorrowed && asOf.After(loan.DueAt) {
			loan.Status = LoanOverdue
			n++
		}
	}
	return n, nil
}

func (s *InMemory) GetLoan(ctx context.Context, id string) (Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[id]
	if !ok {
		return Loan{}, ErrLoanNotFound
	}
	return *loan, nil
}

func (s *InMemory) ListLoansByUser(ctx context.Context, userID string, limit int) ([]Loan, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Loan
	for _, loan := range s.loans {
		if loan.UserID == userID {
			res = append(res, *loan)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
