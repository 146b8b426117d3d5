package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"libris.org/internal/audit"
	"libris.org/internal/auth"
	"libris.org/internal/library"
	"libris.org/internal/notify"
	"libris.org/internal/obs"
)

type createBookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre,omitempty"`
	Rating      int    `json:"rating,omitempty"`
	CoverColor  string `json:"cover_color,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	Description string `json:"description,omitempty"`
	Summary     string `json:"summary,omitempty"`
	TotalCopies int    `json:"total_copies"`
}

type bookResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Genre           string `json:"genre,omitempty"`
	Rating          int    `json:"rating,omitempty"`
	CoverColor      string `json:"cover_color,omitempty"`
	CoverURL        string `json:"cover_url,omitempty"`
	Description     string `json:"description,omitempty"`
	Summary         string `json:"summary,omitempty"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	Available       bool   `json:"available"`
	CreatedAt       string `json:"created_at"`
}

type borrowRequest struct {
	BookID string `json:"book_id"`
}

type loanResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	BookID     string `json:"book_id"`
	BorrowedAt string `json:"borrowed_at"`
	DueAt      string `json:"due_at"`
	ReturnedAt string `json:"returned_at,omitempty"`
	Status     string `json:"status"`
}

func bookPayload(b library.Book) bookResponse {
	return bookResponse{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		Genre:           b.Genre,
		Rating:          b.Rating,
		CoverColor:      b.CoverColor,
		CoverURL:        b.CoverURL,
		Description:     b.Description,
		Summary:         b.Summary,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		Available:       b.AvailableCopies > 0,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func loanPayload(l library.Loan) loanResponse {
	resp := loanResponse{
		ID:         l.ID,
		UserID:     l.UserID,
		BookID:     l.BookID,
		BorrowedAt: l.BorrowedAt.UTC().Format(time.RFC3339),
		DueAt:      l.DueAt.UTC().Format(time.RFC3339),
		Status:     string(l.Status),
	}
	if l.ReturnedAt != nil {
		resp.ReturnedAt = l.ReturnedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (a *API) handleBooksCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := queryLimit(r)
		books, err := a.library.ListBooks(r.Context(), limit)
		if err != nil {
			handleLibraryError(w, r, err)
			return
		}
		items := make([]bookResponse, 0, len(books))
		for _, b := range books {
			items = append(items, bookPayload(b))
		}
		writeJSON(w, http.StatusOK, map[string]any{"books": items})
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req createBookRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		book, err := a.library.CreateBook(r.Context(), library.BookSpec{
			Title:       req.Title,
			Author:      req.Author,
			Genre:       req.Genre,
			Rating:      req.Rating,
			CoverColor:  req.CoverColor,
			CoverURL:    req.CoverURL,
			Description: req.Description,
			Summary:     req.Summary,
			TotalCopies: req.TotalCopies,
		})
		if err != nil {
			handleLibraryError(w, r, err)
			return
		}
		audit.LogEvent(r.Context(), "book_created", map[string]any{
			"book_id": book.ID,
			"copies":  book.TotalCopies,
		})
		writeJSON(w, http.StatusCreated, bookPayload(book))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleBookResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/books/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	book, err := a.library.GetBook(r.Context(), id)
	if err != nil {
		handleLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookPayload(book))
}

// handleLoansCollection creates a loan (POST) or lists the caller's loans
// (GET). Borrow attempts are rate limited per user before the ledger is
// touched; rejected attempts still consume a slot.
func (a *API) handleLoansCollection(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "session expired or invalid")
		return
	}

	switch r.Method {
	case http.MethodPost:
		if !a.admit(w, r, "borrow:"+identity.ID) {
			return
		}
		var req borrowRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.BookID) == "" {
			writeError(w, r, http.StatusBadRequest, "book_id is required")
			return
		}
		loan, err := a.library.Borrow(r.Context(), identity.ID, req.BookID)
		if err != nil {
			obs.CountLoan("rejected")
			handleLibraryError(w, r, err)
			return
		}
		obs.CountLoan("borrowed")
		audit.LogEvent(r.Context(), "loan_created", map[string]any{
			"loan_id": loan.ID,
			"book_id": loan.BookID,
			"due_at":  loan.DueAt.UTC().Format(time.RFC3339),
		})
		if a.notifier != nil && identity.Email != "" {
			a.notifier.Notify(notify.Message{
				Email:   identity.Email,
				Subject: "Borrow receipt",
				Body: "You borrowed a book, due back " +
					loan.DueAt.UTC().Format("2006-01-02") + ".",
			})
		}
		writeJSON(w, http.StatusCreated, loanPayload(loan))
	case http.MethodGet:
		userID := identity.ID
		if requested := r.URL.Query().Get("user_id"); requested != "" && requested != identity.ID {
			if !auth.IsAdmin(r.Context()) {
				writeError(w, r, http.StatusForbidden, "cannot list another user's loans")
				return
			}
			userID = requested
		}
		loans, err := a.library.ListLoansByUser(r.Context(), userID, queryLimit(r))
		if err != nil {
			handleLibraryError(w, r, err)
			return
		}
		items := make([]loanResponse, 0, len(loans))
		for _, l := range loans {
			items = append(items, loanPayload(l))
		}
		writeJSON(w, http.StatusOK, map[string]any{"loans": items})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleLoanResource(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "session expired or invalid")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/loans/")
	loanID, action, _ := strings.Cut(rest, "/")
	if loanID == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		loan, err := a.library.GetLoan(r.Context(), loanID)
		if err != nil {
			handleLibraryError(w, r, err)
			return
		}
		if loan.UserID != identity.ID && !auth.IsAdmin(r.Context()) {
			writeError(w, r, http.StatusForbidden, "cannot view another user's loan")
			return
		}
		writeJSON(w, http.StatusOK, loanPayload(loan))
	case action == "return" && r.Method == http.MethodPost:
		loan, err := a.library.GetLoan(r.Context(), loanID)
		if err != nil {
			handleLibraryError(w, r, err)
			return
		}
		if loan.UserID != identity.ID && !auth.IsAdmin(r.Context()) {
			writeError(w, r, http.StatusForbidden, "cannot return another user's loan")
			return
		}
		loan, err = a.library.Return(r.Context(), loanID)
		if err != nil {
			handleLibraryError(w, r, err)
			return
		}
		obs.CountLoan("returned")
		audit.LogEvent(r.Context(), "loan_returned", map[string]any{
			"loan_id": loan.ID,
			"book_id": loan.BookID,
		})
		writeJSON(w, http.StatusOK, loanPayload(loan))
	case action == "":
		methodNotAllowed(w, r, http.MethodGet)
	case action == "return":
		methodNotAllowed(w, r, http.MethodPost)
	default:
		http.NotFound(w, r)
	}
}

// handleOverdueSweep flips open loans past their due date to OVERDUE.
func (a *API) handleOverdueSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	n, err := a.library.MarkOverdue(r.Context(), time.Now().UTC())
	if err != nil {
		handleLibraryError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "overdue_sweep", map[string]any{"marked": n})
	writeJSON(w, http.StatusOK, map[string]any{"marked_overdue": n})
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
