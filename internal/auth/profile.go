package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/domain"
)

// Profile is the clinician's editable profile.
type Profile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Nombre       string    `json:"nombre"`
	Especialidad string    `json:"especialidad"`
	Institucion  string    `json:"institucion"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProfileUpdate changes the fields that are set.
type ProfileUpdate struct {
	Nombre       *string `json:"nombre"`
	Especialidad *string `json:"especialidad"`
	Institucion  *string `json:"institucion"`
}

func (u ProfileUpdate) apply(p *Profile) {
	if u.Nombre != nil {
		p.Nombre = strings.TrimSpace(*u.Nombre)
	}
	if u.Especialidad != nil {
		p.Especialidad = strings.TrimSpace(*u.Especialidad)
	}
	if u.Institucion != nil {
		p.Institucion = strings.TrimSpace(*u.Institucion)
	}
}

// Validate rejects clearing the name.
func (u ProfileUpdate) Validate() error {
	if u.Nombre != nil && strings.TrimSpace(*u.Nombre) == "" {
		return domain.NewValidationError("nombre", MsgNameRequired, nil)
	}
	return nil
}

// ProfileStore persists profiles keyed by identity id.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	// Ensure returns the profile for identity, creating it from the identity
	// on first use.
	Ensure(ctx context.Context, identity Identity) (*Profile, error)
	Update(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error)
}

func profileFromIdentity(identity Identity) Profile {
	return Profile{
		ID:           identity.ID,
		Email:        identity.Email,
		Nombre:       identity.Nombre,
		Especialidad: identity.Especialidad,
		UpdatedAt:    time.Now(),
	}
}

// MemoryProfileStore keeps profiles in process memory.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewMemoryProfileStore creates an empty profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]Profile)}
}

// Get returns a copy of the stored profile.
func (s *MemoryProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
	}
	return &p, nil
}

// Ensure creates the profile on first use.
func (s *MemoryProfileStore) Ensure(ctx context.Context, identity Identity) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identity.ID]
	if !ok {
		p = profileFromIdentity(identity)
		s.profiles[identity.ID] = p
	}
	return &p, nil
}

// Update applies the set fields.
func (s *MemoryProfileStore) Update(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
	}
	update.apply(&p)
	p.UpdatedAt = time.Now()
	s.profiles[userID] = p
	return &p, nil
}

// PostgresProfileStore keeps profiles in the profiles table.
type PostgresProfileStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresProfileStore creates a profile store on an existing pool.
func NewPostgresProfileStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresProfileStore {
	return &PostgresProfileStore{db: db, log: logger}
}

const profileColumns = `id, email, nombre, especialidad, institucion, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.Email, &p.Nombre, &p.Especialidad, &p.Institucion, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns the stored profile.
func (s *PostgresProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// Ensure inserts the profile if missing and returns the stored row.
func (s *PostgresProfileStore) Ensure(ctx context.Context, identity Identity) (*Profile, error) {
	seed := profileFromIdentity(identity)
	query := `
		INSERT INTO profiles (id, email, nombre, especialidad, institucion, updated_at)
		VALUES ($1, $2, $3, $4, '', $5)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING ` + profileColumns

	p, err := scanProfile(s.db.QueryRow(ctx, query, seed.ID, seed.Email, seed.Nombre, seed.Especialidad, seed.UpdatedAt))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id": identity.ID,
			"error":   err,
		}).Error("Failed to ensure profile")
		return nil, fmt.Errorf("ensuring profile: %w", err)
	}
	return p, nil
}

// Update applies the set fields; unset fields keep their stored value.
func (s *PostgresProfileStore) Update(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE profiles SET
			nombre = COALESCE($2, nombre),
			especialidad = COALESCE($3, especialidad),
			institucion = COALESCE($4, institucion),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	p, err := scanProfile(s.db.QueryRow(ctx, query, userID,
		trimmed(update.Nombre), trimmed(update.Especialidad), trimmed(update.Institucion)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return p, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
