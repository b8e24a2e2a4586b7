package presentation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slidebanai/slidebanai/backend-go/internal/ai"
	"github.com/slidebanai/slidebanai/backend-go/internal/collab"
	"github.com/slidebanai/slidebanai/backend-go/internal/db"
	"github.com/slidebanai/slidebanai/backend-go/internal/typeid"
)

var (
	ErrNotFound        = errors.New("presentation not found")
	ErrForbidden       = errors.New("forbidden")
	ErrNotCollaborator = errors.New("not a collaborator")
	ErrInvalidRole     = errors.New("invalid role")
)

// RosterNotifier pushes durable roster changes into the live presence layer
// so already-connected sessions don't serve a stale role. The durable store
// stays the source of truth; this is cache invalidation, nothing more.
type RosterNotifier interface {
	UpdateRole(presentationID, userID string, newRole collab.Role)
	Revoke(presentationID, userID string)
}

type Service struct {
	queries  *db.Queries
	notifier RosterNotifier
}

func NewService(queries *db.Queries, notifier RosterNotifier) *Service {
	return &Service{queries: queries, notifier: notifier}
}

type Presentation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Slides    []Slide   `json:"slides,omitempty"`
}

type Slide struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
	Notes   string   `json:"notes"`
}

type Collaborator struct {
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

func (s *Service) Create(ctx context.Context, title, ownerID string) (*Presentation, error) {
	dbPres, err := s.queries.CreatePresentation(ctx, db.CreatePresentationParams{
		ID:      typeid.NewPresentationID(),
		Title:   title,
		OwnerID: ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("create presentation: %w", err)
	}

	// Seed a single title slide so the editor never opens on an empty deck.
	seed := []db.SlideParams{{ID: typeid.NewSlideID(), Title: title}}
	if err := s.queries.ReplaceSlides(ctx, dbPres.ID, seed); err != nil {
		return nil, fmt.Errorf("seed slides: %w", err)
	}

	return s.Get(ctx, dbPres.ID, ownerID)
}

// CreateFromOutline persists an AI-drafted deck owned by ownerID.
func (s *Service) CreateFromOutline(ctx context.Context, ownerID string, outline *ai.Outline) (*Presentation, error) {
	dbPres, err := s.queries.CreatePresentation(ctx, db.CreatePresentationParams{
		ID:      typeid.NewPresentationID(),
		Title:   outline.Title,
		OwnerID: ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("create presentation: %w", err)
	}

	slides := make([]db.SlideParams, len(outline.Slides))
	for i, draft := range outline.Slides {
		slides[i] = db.SlideParams{
			ID:      typeid.NewSlideID(),
			Title:   draft.Title,
			Bullets: draft.Bullets,
			Notes:   draft.Notes,
		}
	}
	if err := s.queries.ReplaceSlides(ctx, dbPres.ID, slides); err != nil {
		return nil, fmt.Errorf("store drafted slides: %w", err)
	}

	return s.Get(ctx, dbPres.ID, ownerID)
}

func (s *Service) Get(ctx context.Context, presentationID, userID string) (*Presentation, error) {
	if err := s.checkAccess(ctx, presentationID, userID); err != nil {
		return nil, err
	}

	dbPres, err := s.queries.GetPresentation(ctx, presentationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get presentation: %w", err)
	}

	dbSlides, err := s.queries.ListSlides(ctx, presentationID)
	if err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}

	pres := dbPresentationToPresentation(dbPres)
	pres.Slides = make([]Slide, len(dbSlides))
	for i, sl := range dbSlides {
		pres.Slides[i] = Slide{ID: sl.ID, Title: sl.Title, Bullets: sl.Bullets, Notes: sl.Notes}
	}
	return pres, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Presentation, error) {
	dbPres, err := s.queries.ListPresentationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list presentations: %w", err)
	}

	out := make([]Presentation, len(dbPres))
	for i, p := range dbPres {
		out[i] = *dbPresentationToPresentation(p)
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, presentationID, userID string) error {
	dbPres, err := s.queries.GetPresentation(ctx, presentationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get presentation: %w", err)
	}

	if dbPres.OwnerID != userID {
		return ErrForbidden
	}

	return s.queries.DeletePresentation(ctx, presentationID)
}

func (s *Service) UpdateTitle(ctx context.Context, presentationID, userID, title string) error {
	if err := s.checkEditor(ctx, presentationID, userID); err != nil {
		return err
	}
	return s.queries.UpdatePresentationTitle(ctx, db.UpdatePresentationTitleParams{
		ID:    presentationID,
		Title: title,
	})
}

func (s *Service) ReplaceSlides(ctx context.Context, presentationID, userID string, slides []Slide) error {
	if err := s.checkEditor(ctx, presentationID, userID); err != nil {
		return err
	}

	params := make([]db.SlideParams, len(slides))
	for i, sl := range slides {
		id := sl.ID
		if id == "" {
			id = typeid.NewSlideID()
		}
		params[i] = db.SlideParams{ID: id, Title: sl.Title, Bullets: sl.Bullets, Notes: sl.Notes}
	}
	return s.queries.ReplaceSlides(ctx, presentationID, params)
}

// InviteByEmail adds or updates a collaborator row and refreshes any live
// sessions that user already has open on the presentation.
func (s *Service) InviteByEmail(ctx context.Context, presentationID, ownerID, inviteeEmail, role string) error {
	if err := validateRosterRole(role); err != nil {
		return err
	}

	dbPres, err := s.queries.GetPresentation(ctx, presentationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get presentation: %w", err)
	}
	if dbPres.OwnerID != ownerID {
		return ErrForbidden
	}

	invitee, err := s.queries.GetUserByEmail(ctx, inviteeEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.New("user not found")
		}
		return fmt.Errorf("find user: %w", err)
	}
	if invitee.ID == ownerID {
		return errors.New("cannot invite the owner")
	}

	err = s.queries.UpsertCollaborator(ctx, db.UpsertCollaboratorParams{
		PresentationID: presentationID,
		UserID:         invitee.ID,
		Role:           role,
	})
	if err != nil {
		return fmt.Errorf("upsert collaborator: %w", err)
	}

	s.notifier.UpdateRole(presentationID, invitee.ID, collab.Role(role))
	return nil
}

func (s *Service) ListCollaborators(ctx context.Context, presentationID, userID string) ([]Collaborator, error) {
	if err := s.checkAccess(ctx, presentationID, userID); err != nil {
		return nil, err
	}

	dbCollabs, err := s.queries.ListCollaborators(ctx, presentationID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}

	out := make([]Collaborator, len(dbCollabs))
	for i, c := range dbCollabs {
		out[i] = Collaborator{
			UserID:   c.UserID,
			Role:     c.Role,
			FullName: c.FullName,
			Email:    c.Email,
		}
	}
	return out, nil
}

func (s *Service) UpdateCollaboratorRole(ctx context.Context, presentationID, ownerID, targetUserID, role string) error {
	if err := validateRosterRole(role); err != nil {
		return err
	}

	dbPres, err := s.queries.GetPresentation(ctx, presentationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get presentation: %w", err)
	}
	if dbPres.OwnerID != ownerID {
		return ErrForbidden
	}
	if targetUserID == ownerID {
		return errors.New("cannot change the owner's role")
	}

	err = s.queries.UpsertCollaborator(ctx, db.UpsertCollaboratorParams{
		PresentationID: presentationID,
		UserID:         targetUserID,
		Role:           role,
	})
	if err != nil {
		return fmt.Errorf("upsert collaborator: %w", err)
	}

	s.notifier.UpdateRole(presentationID, targetUserID, collab.Role(role))
	return nil
}

// RemoveCollaborator deletes the roster row and cuts off any sessions the
// user still has open, rather than letting them idle out.
func (s *Service) RemoveCollaborator(ctx context.Context, presentationID, ownerID, targetUserID string) error {
	dbPres, err := s.queries.GetPresentation(ctx, presentationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get presentation: %w", err)
	}
	if dbPres.OwnerID != ownerID {
		return ErrForbidden
	}
	if targetUserID == ownerID {
		return errors.New("cannot remove the owner")
	}

	err = s.queries.RemoveCollaborator(ctx, db.AccessParams{
		PresentationID: presentationID,
		UserID:         targetUserID,
	})
	if err != nil {
		return fmt.Errorf("remove collaborator: %w", err)
	}

	s.notifier.Revoke(presentationID, targetUserID)
	return nil
}

func (s *Service) checkAccess(ctx context.Context, presentationID, userID string) error {
	ok, err := s.queries.HasAccess(ctx, db.AccessParams{
		PresentationID: presentationID,
		UserID:         userID,
	})
	if err != nil {
		return fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return ErrNotCollaborator
	}
	return nil
}

func (s *Service) checkEditor(ctx context.Context, presentationID, userID string) error {
	role, err := s.queries.GetCollaboratorRole(ctx, db.AccessParams{
		PresentationID: presentationID,
		UserID:         userID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotCollaborator
		}
		return fmt.Errorf("check role: %w", err)
	}
	if role != db.RoleOwner && role != db.RoleEditor {
		return ErrForbidden
	}
	return nil
}

func validateRosterRole(role string) error {
	if role != db.RoleEditor && role != db.RoleViewer {
		return ErrInvalidRole
	}
	return nil
}

func dbPresentationToPresentation(p db.Presentation) *Presentation {
	return &Presentation{
		ID:        p.ID,
		Title:     p.Title,
		OwnerID:   p.OwnerID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
