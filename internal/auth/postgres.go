package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ UserStore = (*PGStore)(nil)

// PGStore implements UserStore using PostgreSQL (identities table).
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into identities(id, full_name, email, university_id, university_card_url,
			password_hash, role, status, last_activity_date, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, u.ID, u.FullName, u.Email, u.UniversityID, u.UniversityCardURL,
		u.PasswordHash, string(u.Role), u.Status, u.LastActivityDate, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, full_name, email, university_id, university_card_url,
			password_hash, role, status, last_activity_date, created_at
		from identities where id=$1
	`, id))
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, full_name, email, university_id, university_card_url,
			password_hash, role, status, last_activity_date, created_at
		from identities where email=$1
	`, email))
}

// TouchActivity is conditional on the stored date being behind, so it stays
// idempotent within a calendar day.
func (s *PGStore) TouchActivity(ctx context.Context, userID string, day time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update identities set last_activity_date=$2
		where id=$1 and last_activity_date < $2
	`, userID, day)
	if err != nil {
		return err
	}
	if _, err := res.RowsAffected(); err != nil {
		return err
	}
	return nil
}

func (s *PGStore) scanOne(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.UniversityID, &u.UniversityCardURL,
		&u.PasswordHash, &role, &u.Status, &u.LastActivityDate, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}
