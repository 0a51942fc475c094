// Package store is the repository boundary between the core and record
// persistence. The core never inspects an error's cause, only whether the
// operation succeeded and whether the record was absent.
package store

import (
	"context"
	"errors"

	"github.com/abstimmung-app/backend/internal/model/vote"
)

// ErrNotFound marks a lookup for a record that does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides CRUD over users, sessions and surveys plus the two relational
// reads the core needs. Related records are never auto-populated; resolving a
// reference is always a second call.
type Store interface {
	CreateUser(ctx context.Context, user vote.User) error
	UserByID(ctx context.Context, id string) (vote.User, error)
	UserByUsername(ctx context.Context, username string) (vote.User, error)

	CreateSession(ctx context.Context, session vote.Session) error
	SessionByID(ctx context.Context, id string) (vote.Session, error)
	UpdateSession(ctx context.Context, session vote.Session) error
	SessionsByParticipant(ctx context.Context, uid string) ([]vote.Session, error)

	CreateSurvey(ctx context.Context, survey vote.Survey) error
	SurveyByID(ctx context.Context, id string) (vote.Survey, error)
	UpdateSurvey(ctx context.Context, survey vote.Survey) error
	SurveysBySession(ctx context.Context, sessionID string) ([]vote.Survey, error)
}
