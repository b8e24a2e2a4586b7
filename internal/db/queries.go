package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Role values stored in the collaborators table. The owner role is implied
// by presentations.owner_id and never written to the roster.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

type Queries struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

type User struct {
	ID        string
	Email     string
	Password  string
	FullName  string
	CreatedAt time.Time
}

type Presentation struct {
	ID        string
	Title     string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Slide struct {
	ID             string
	PresentationID string
	Position       int32
	Title          string
	Bullets        []string
	Notes          string
}

type Collaborator struct {
	PresentationID string
	UserID         string
	Role           string
	FullName       string
	Email          string
	InvitedAt      time.Time
}

type PracticeSession struct {
	ID              string
	UserID          string
	PresentationID  *string
	Transcript      string
	DurationSeconds int32
	WordsPerMinute  float64
	FillerCount     int32
	Feedback        string
	CreatedAt       time.Time
}

type CreateUserParams struct {
	ID       string
	Email    string
	Password string
	FullName string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password, full_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, email, password, full_name, created_at`,
		arg.ID, arg.Email, arg.Password, arg.FullName)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.CreatedAt)
	return u, err
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT id, email, password, full_name, created_at FROM users WHERE email = $1`,
		email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.CreatedAt)
	return u, err
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT id, email, password, full_name, created_at FROM users WHERE id = $1`,
		id)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.CreatedAt)
	return u, err
}

type CreatePresentationParams struct {
	ID      string
	Title   string
	OwnerID string
}

func (q *Queries) CreatePresentation(ctx context.Context, arg CreatePresentationParams) (Presentation, error) {
	row := q.pool.QueryRow(ctx,
		`INSERT INTO presentations (id, title, owner_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, title, owner_id, created_at, updated_at`,
		arg.ID, arg.Title, arg.OwnerID)
	var p Presentation
	err := row.Scan(&p.ID, &p.Title, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) GetPresentation(ctx context.Context, id string) (Presentation, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT id, title, owner_id, created_at, updated_at FROM presentations WHERE id = $1`,
		id)
	var p Presentation
	err := row.Scan(&p.ID, &p.Title, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) ListPresentationsForUser(ctx context.Context, userID string) ([]Presentation, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT DISTINCT p.id, p.title, p.owner_id, p.created_at, p.updated_at
		 FROM presentations p
		 LEFT JOIN collaborators c ON c.presentation_id = p.id
		 WHERE p.owner_id = $1 OR c.user_id = $1
		 ORDER BY p.updated_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Presentation
	for rows.Next() {
		var p Presentation
		if err := rows.Scan(&p.ID, &p.Title, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type UpdatePresentationTitleParams struct {
	ID    string
	Title string
}

func (q *Queries) UpdatePresentationTitle(ctx context.Context, arg UpdatePresentationTitleParams) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE presentations SET title = $2, updated_at = now() WHERE id = $1`,
		arg.ID, arg.Title)
	return err
}

func (q *Queries) DeletePresentation(ctx context.Context, id string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM presentations WHERE id = $1`, id)
	return err
}

type SlideParams struct {
	ID      string
	Title   string
	Bullets []string
	Notes   string
}

// ReplaceSlides swaps the full slide deck of a presentation in one
// transaction so readers never observe a half-written deck.
func (q *Queries) ReplaceSlides(ctx context.Context, presentationID string, slides []SlideParams) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM slides WHERE presentation_id = $1`, presentationID); err != nil {
		return err
	}
	for i, s := range slides {
		_, err := tx.Exec(ctx,
			`INSERT INTO slides (id, presentation_id, position, title, bullets, notes)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, presentationID, int32(i), s.Title, s.Bullets, s.Notes)
		if err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE presentations SET updated_at = now() WHERE id = $1`, presentationID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (q *Queries) ListSlides(ctx context.Context, presentationID string) ([]Slide, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT id, presentation_id, position, title, bullets, notes
		 FROM slides WHERE presentation_id = $1 ORDER BY position`,
		presentationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slide
	for rows.Next() {
		var s Slide
		if err := rows.Scan(&s.ID, &s.PresentationID, &s.Position, &s.Title, &s.Bullets, &s.Notes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type AccessParams struct {
	PresentationID string
	UserID         string
}

// HasAccess reports whether the user owns the presentation or holds a
// collaborator row for it.
func (q *Queries) HasAccess(ctx context.Context, arg AccessParams) (bool, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM presentations WHERE id = $1 AND owner_id = $2
			UNION
			SELECT 1 FROM collaborators WHERE presentation_id = $1 AND user_id = $2
		 )`,
		arg.PresentationID, arg.UserID)
	var ok bool
	err := row.Scan(&ok)
	return ok, err
}

// GetCollaboratorRole returns the user's role on the presentation, treating
// the owner row as RoleOwner. Returns pgx.ErrNoRows when the user has no
// access at all.
func (q *Queries) GetCollaboratorRole(ctx context.Context, arg AccessParams) (string, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT role FROM (
			SELECT 'owner' AS role FROM presentations WHERE id = $1 AND owner_id = $2
			UNION ALL
			SELECT role FROM collaborators WHERE presentation_id = $1 AND user_id = $2
		 ) r LIMIT 1`,
		arg.PresentationID, arg.UserID)
	var role string
	err := row.Scan(&role)
	return role, err
}

func (q *Queries) ListCollaborators(ctx context.Context, presentationID string) ([]Collaborator, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT c.presentation_id, c.user_id, c.role, u.full_name, u.email, c.invited_at
		 FROM collaborators c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.presentation_id = $1
		 ORDER BY c.invited_at`,
		presentationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Collaborator
	for rows.Next() {
		var c Collaborator
		if err := rows.Scan(&c.PresentationID, &c.UserID, &c.Role, &c.FullName, &c.Email, &c.InvitedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type UpsertCollaboratorParams struct {
	PresentationID string
	UserID         string
	Role           string
}

func (q *Queries) UpsertCollaborator(ctx context.Context, arg UpsertCollaboratorParams) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO collaborators (presentation_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (presentation_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		arg.PresentationID, arg.UserID, arg.Role)
	return err
}

func (q *Queries) RemoveCollaborator(ctx context.Context, arg AccessParams) error {
	_, err := q.pool.Exec(ctx,
		`DELETE FROM collaborators WHERE presentation_id = $1 AND user_id = $2`,
		arg.PresentationID, arg.UserID)
	return err
}

type CreatePracticeSessionParams struct {
	ID              string
	UserID          string
	PresentationID  *string
	Transcript      string
	DurationSeconds int32
	WordsPerMinute  float64
	FillerCount     int32
	Feedback        string
}

func (q *Queries) CreatePracticeSession(ctx context.Context, arg CreatePracticeSessionParams) (PracticeSession, error) {
	row := q.pool.QueryRow(ctx,
		`INSERT INTO practice_sessions
			(id, user_id, presentation_id, transcript, duration_seconds, words_per_minute, filler_count, feedback)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, user_id, presentation_id, transcript, duration_seconds, words_per_minute, filler_count, feedback, created_at`,
		arg.ID, arg.UserID, arg.PresentationID, arg.Transcript, arg.DurationSeconds,
		arg.WordsPerMinute, arg.FillerCount, arg.Feedback)
	var s PracticeSession
	err := row.Scan(&s.ID, &s.UserID, &s.PresentationID, &s.Transcript, &s.DurationSeconds,
		&s.WordsPerMinute, &s.FillerCount, &s.Feedback, &s.CreatedAt)
	return s, err
}

func (q *Queries) GetPracticeSession(ctx context.Context, id string) (PracticeSession, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT id, user_id, presentation_id, transcript, duration_seconds, words_per_minute, filler_count, feedback, created_at
		 FROM practice_sessions WHERE id = $1`,
		id)
	var s PracticeSession
	err := row.Scan(&s.ID, &s.UserID, &s.PresentationID, &s.Transcript, &s.DurationSeconds,
		&s.WordsPerMinute, &s.FillerCount, &s.Feedback, &s.CreatedAt)
	return s, err
}

func (q *Queries) ListPracticeSessions(ctx context.Context, userID string) ([]PracticeSession, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT id, user_id, presentation_id, transcript, duration_seconds, words_per_minute, filler_count, feedback, created_at
		 FROM practice_sessions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PracticeSession
	for rows.Next() {
		var s PracticeSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.PresentationID, &s.Transcript, &s.DurationSeconds,
			&s.WordsPerMinute, &s.FillerCount, &s.Feedback, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
