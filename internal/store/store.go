package store

import (
	"context"

	"github.com/joescharf/cdesk/internal/models"
)

// ActivityFilter narrows activity queries by operation; "all" or "" matches everything.
type ActivityFilter string

const (
	FilterAll      ActivityFilter = "all"
	FilterCreated  ActivityFilter = "created"
	FilterModified ActivityFilter = "modified"
	FilterDeleted  ActivityFilter = "deleted"
)

// Store defines the persistence interface for cdesk.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, projectID string, limit, offset int) ([]*models.SessionSummary, error)
	RenameSession(ctx context.Context, id, title string) error
	TouchSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error

	// Messages
	SaveMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error)

	// Activity log
	SaveActivity(ctx context.Context, e *models.ActivityEntry) error
	ListActivity(ctx context.Context, sessionID string, filter ActivityFilter, limit, offset int) ([]*models.ActivityEntry, error)
	ClearActivity(ctx context.Context, sessionID string) error

	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetProjectByName(ctx context.Context, name string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
