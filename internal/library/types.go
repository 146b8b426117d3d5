package library

import (
	"errors"
	"time"
)

// LoanStatus tracks the lifecycle of a single borrow record.
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "BORROWED"
	LoanReturned LoanStatus = "RETURNED"
	LoanOverdue  LoanStatus = "OVERDUE"
)

// Book is an inventory item. AvailableCopies is the single source of truth
// for whether the book can be borrowed right now; it only moves through
// Borrow (-1) and Return (+1) and always stays within [0, TotalCopies].
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Genre           string    `json:"genre"`
	Rating          int       `json:"rating"`
	CoverColor      string    `json:"cover_color"`
	CoverURL        string    `json:"cover_url"`
	Description     string    `json:"description"`
	Summary         string    `json:"summary"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
}

// Loan is an append-style borrow record.
type Loan struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	BookID     string     `json:"book_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Status     LoanStatus `json:"status"`
}

// BookSpec carries the validated fields for creating a book.
type BookSpec struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre"`
	Rating      int    `json:"rating"`
	CoverColor  string `json:"cover_color"`
	CoverURL    string `json:"cover_url"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
	TotalCopies int    `json:"total_copies"`
}

var (
	ErrBookNotFound      = errors.New("book not found")
	ErrBookUnavailable   = errors.New("book unavailable")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrLoanAlreadyClosed = errors.New("loan already closed")
	ErrInvalidBook       = errors.New("invalid book")
)

// DefaultLoanPeriod is applied when no loan period is configured.
const DefaultLoanPeriod = 7 * 24 * time.Hour

// MaxTotalCopies caps the stock a single book may declare.
const MaxTotalCopies = 10000
