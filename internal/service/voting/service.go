// Package voting owns the session and survey state, including the vote state
// machine and its consistency guarantees.
package voting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/abstimmung-app/backend/internal/model/vote"
	"github.com/abstimmung-app/backend/internal/store"
	"github.com/abstimmung-app/backend/internal/store/tally"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSurveyNotFound    = errors.New("survey not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrSurveyClosed      = errors.New("survey closed")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrInvalidChoice     = errors.New("invalid choice")
	ErrAbstainNotAllowed = errors.New("abstain not allowed")
	ErrNotParticipant    = errors.New("not a session participant")
)

// Notifier receives a refresh trigger after every successful mutation. The
// broadcast coordinator implements it; tests substitute a recorder.
type Notifier interface {
	Refresh()
}

// Service implements the session operations and the survey state machine.
// Vote casts on one survey are serialized through a per-survey lock so two
// concurrent first-time voters cannot both pass the uniqueness check.
type Service struct {
	store       store.Store
	tally       *tally.Cache
	notifier    Notifier
	anonymousID string

	mu          sync.Mutex
	surveyLocks map[string]*sync.Mutex
}

// NewService wires the voting core. anonymousID is the reserved sentinel
// user's id used as the ballot identity on anonymous surveys; cache may be nil.
func NewService(st store.Store, cache *tally.Cache, notifier Notifier, anonymousID string) *Service {
	return &Service{
		store:       st,
		tally:       cache,
		notifier:    notifier,
		anonymousID: anonymousID,
		surveyLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) surveyLock(surveyID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.surveyLocks[surveyID]
	if !ok {
		lock = &sync.Mutex{}
		s.surveyLocks[surveyID] = lock
	}
	return lock
}

func (s *Service) notify() {
	if s.notifier != nil {
		s.notifier.Refresh()
	}
}

// CreateSession opens a voting room. The creator becomes owner and first
// participant.
func (s *Service) CreateSession(ctx context.Context, owner, name, description string) (vote.Session, error) {
	session := vote.Session{
		ID:           uuid.NewString(),
		Owner:        owner,
		Participants: []string{owner},
		Surveys:      []string{},
		Name:         name,
		Description:  description,
		IsActive:     true,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return vote.Session{}, err
	}
	s.notify()
	return session, nil
}

// UpdateSession renames a session and replaces its description.
func (s *Service) UpdateSession(ctx context.Context, id, name, description string) error {
	session, err := s.store.SessionByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	session.Name = name
	session.Description = description
	return s.store.UpdateSession(ctx, session)
}

// StopSession deactivates a session. Records are never hard-deleted.
func (s *Service) StopSession(ctx context.Context, id string) error {
	session, err := s.store.SessionByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	session.IsActive = false
	return s.store.UpdateSession(ctx, session)
}

// JoinSession adds uid to the participant set. Joining twice is a no-op; the
// membership set never holds duplicates. Joining never reopens a closed survey.
func (s *Service) JoinSession(ctx context.Context, sessionID, uid string) (vote.Session, error) {
	session, err := s.store.SessionByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return vote.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return vote.Session{}, err
	}

	if !session.HasParticipant(uid) {
		session.Participants = append(session.Participants, uid)
		if err := s.store.UpdateSession(ctx, session); err != nil {
			return vote.Session{}, err
		}
	}
	s.notify()
	return session, nil
}

// LeaveSession removes uid from the participant set.
func (s *Service) LeaveSession(ctx context.Context, sessionID, uid string) error {
	session, err := s.store.SessionByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	kept := session.Participants[:0]
	for _, p := range session.Participants {
		if p != uid {
			kept = append(kept, p)
		}
	}
	session.Participants = kept
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return err
	}
	s.notify()
	return nil
}

// CreateSurveyRequest carries the survey creation fields from the wire.
type CreateSurveyRequest struct {
	SessionID       string
	Creator         string
	Name            string
	Description     string
	Opened          bool
	Anonymous       bool
	AllowEnthaltung bool
}

// CreateSurvey creates a poll inside a session and links its id into the
// session's survey set, keeping the reference bidirectional.
func (s *Service) CreateSurvey(ctx context.Context, req CreateSurveyRequest) (vote.Survey, error) {
	session, err := s.store.SessionByID(ctx, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return vote.Survey{}, ErrSessionNotFound
	}
	if err != nil {
		return vote.Survey{}, err
	}
	if !session.HasParticipant(req.Creator) {
		return vote.Survey{}, ErrNotParticipant
	}

	survey := vote.Survey{
		ID:              uuid.NewString(),
		SurveySession:   req.SessionID,
		Creator:         req.Creator,
		Name:            req.Name,
		Description:     req.Description,
		Opened:          req.Opened,
		Anonymous:       req.Anonymous,
		AllowEnthaltung: req.AllowEnthaltung,
		Approve:         []string{},
		Deny:            []string{},
		Abstain:         []string{},
		Participants:    []string{},
	}
	if err := s.store.CreateSurvey(ctx, survey); err != nil {
		return vote.Survey{}, err
	}

	session.Surveys = append(session.Surveys, survey.ID)
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return vote.Survey{}, err
	}

	s.notify()
	return survey, nil
}

// CastVote runs the atomic vote transition for one voter on one survey.
//
// Validation order is fixed: missing survey, closed survey, duplicate voter,
// unknown choice, disallowed abstention. Nothing is persisted before every
// check has passed. On an anonymous survey the ballot records the reserved
// sentinel identity while the participant set records the real voter, which
// keeps double-voting detectable without making ballots linkable.
func (s *Service) CastVote(ctx context.Context, surveyID, voterID string, choice vote.Choice) (vote.Survey, error) {
	lock := s.surveyLock(surveyID)
	lock.Lock()
	defer lock.Unlock()

	survey, err := s.store.SurveyByID(ctx, surveyID)
	if errors.Is(err, store.ErrNotFound) {
		return vote.Survey{}, ErrSurveyNotFound
	}
	if err != nil {
		return vote.Survey{}, err
	}

	if !survey.Opened {
		return vote.Survey{}, ErrSurveyClosed
	}
	if survey.HasVoted(voterID) {
		return vote.Survey{}, ErrAlreadyVoted
	}
	if !choice.Known() {
		return vote.Survey{}, ErrInvalidChoice
	}
	if choice == vote.ChoiceAbstain && !survey.AllowEnthaltung {
		return vote.Survey{}, ErrAbstainNotAllowed
	}

	if _, err := s.store.UserByID(ctx, voterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return vote.Survey{}, ErrUserNotFound
		}
		return vote.Survey{}, err
	}

	ballotID := voterID
	if survey.Anonymous {
		ballotID = s.anonymousID
	}

	switch choice {
	case vote.ChoiceApprove:
		survey.Approve = append(survey.Approve, ballotID)
	case vote.ChoiceDeny:
		survey.Deny = append(survey.Deny, ballotID)
	case vote.ChoiceAbstain:
		survey.Abstain = append(survey.Abstain, ballotID)
	}
	survey.Participants = append(survey.Participants, voterID)

	if err := s.store.UpdateSurvey(ctx, survey); err != nil {
		return vote.Survey{}, err
	}

	// Closure policy: once every current session member has voted, the survey
	// is fully resolved. Closed is terminal; later joins cannot reopen it.
	session, err := s.store.SessionByID(ctx, survey.SurveySession)
	if err != nil {
		log.Printf("[voting] closure check skipped, session lookup failed: %v", err)
	} else if len(survey.Participants) == len(session.Participants) {
		survey.Opened = false
		if err := s.store.UpdateSurvey(ctx, survey); err != nil {
			return vote.Survey{}, err
		}
	}

	if err := s.tally.Invalidate(ctx, surveyID); err != nil {
		log.Printf("[voting] tally invalidate failed: %v", err)
	}

	s.notify()
	return survey, nil
}

// Tally returns the ballot counts for a survey, read through the cache.
func (s *Service) Tally(ctx context.Context, surveyID string) (tally.Counts, error) {
	if counts, ok, err := s.tally.Get(ctx, surveyID); err != nil {
		log.Printf("[voting] tally cache read failed: %v", err)
	} else if ok {
		return counts, nil
	}

	survey, err := s.store.SurveyByID(ctx, surveyID)
	if errors.Is(err, store.ErrNotFound) {
		return tally.Counts{}, ErrSurveyNotFound
	}
	if err != nil {
		return tally.Counts{}, err
	}

	approve, deny, abstain := survey.Tally()
	counts := tally.Counts{Approve: approve, Deny: deny, Abstain: abstain}
	if err := s.tally.Put(ctx, surveyID, counts); err != nil {
		log.Printf("[voting] tally cache write failed: %v", err)
	}
	return counts, nil
}

// SessionByID returns a session with its participant references resolved.
func (s *Service) SessionByID(ctx context.Context, id string) (vote.SessionDetail, error) {
	session, err := s.store.SessionByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return vote.SessionDetail{}, ErrSessionNotFound
	}
	if err != nil {
		return vote.SessionDetail{}, err
	}
	return vote.SessionDetail{
		Session:          session,
		ParticipantUsers: s.resolveUsers(ctx, session.Participants),
	}, nil
}

// SurveyByID returns a survey with every reference list resolved.
func (s *Service) SurveyByID(ctx context.Context, id string) (vote.SurveyDetail, error) {
	survey, err := s.store.SurveyByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return vote.SurveyDetail{}, ErrSurveyNotFound
	}
	if err != nil {
		return vote.SurveyDetail{}, err
	}
	return vote.SurveyDetail{
		Survey:           survey,
		ParticipantUsers: s.resolveUsers(ctx, survey.Participants),
		ApproveUsers:     s.resolveUsers(ctx, survey.Approve),
		DenyUsers:        s.resolveUsers(ctx, survey.Deny),
		AbstainUsers:     s.resolveUsers(ctx, survey.Abstain),
	}, nil
}

// SessionsByParticipant lists the sessions uid belongs to.
func (s *Service) SessionsByParticipant(ctx context.Context, uid string) ([]vote.Session, error) {
	return s.store.SessionsByParticipant(ctx, uid)
}

// NamedSession is the reduced listing shape for session pickers.
type NamedSession struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SessionNames lists id and name of the sessions uid belongs to.
func (s *Service) SessionNames(ctx context.Context, uid string) ([]NamedSession, error) {
	sessions, err := s.store.SessionsByParticipant(ctx, uid)
	if err != nil {
		return nil, err
	}
	names := make([]NamedSession, 0, len(sessions))
	for _, session := range sessions {
		names = append(names, NamedSession{ID: session.ID, Name: session.Name})
	}
	return names, nil
}

// SurveysBySession lists the surveys inside one session.
func (s *Service) SurveysBySession(ctx context.Context, sessionID string) ([]vote.Survey, error) {
	return s.store.SurveysBySession(ctx, sessionID)
}

// SurveysByParticipant lists every survey in every session uid belongs to.
func (s *Service) SurveysByParticipant(ctx context.Context, uid string) ([]vote.Survey, error) {
	sessions, err := s.store.SessionsByParticipant(ctx, uid)
	if err != nil {
		return nil, err
	}
	var surveys []vote.Survey
	for _, session := range sessions {
		batch, err := s.store.SurveysBySession(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("surveys for session %s: %w", session.ID, err)
		}
		surveys = append(surveys, batch...)
	}
	return surveys, nil
}

// SessionOverviews lists uid's sessions with participants resolved and survey
// records embedded, for the combined dashboard query.
func (s *Service) SessionOverviews(ctx context.Context, uid string) ([]vote.SessionOverview, error) {
	sessions, err := s.store.SessionsByParticipant(ctx, uid)
	if err != nil {
		return nil, err
	}
	overviews := make([]vote.SessionOverview, 0, len(sessions))
	for _, session := range sessions {
		surveys, err := s.store.SurveysBySession(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("surveys for session %s: %w", session.ID, err)
		}
		overviews = append(overviews, vote.SessionOverview{
			Session:          session,
			ParticipantUsers: s.resolveUsers(ctx, session.Participants),
			SurveyRecords:    surveys,
		})
	}
	return overviews, nil
}

// resolveUsers maps reference ids to public users, skipping dangling ids.
func (s *Service) resolveUsers(ctx context.Context, ids []string) []vote.PublicUser {
	users := make([]vote.PublicUser, 0, len(ids))
	for _, id := range ids {
		user, err := s.store.UserByID(ctx, id)
		if err != nil {
			log.Printf("[voting] dangling user reference %s: %v", id, err)
			continue
		}
		users = append(users, user.Public())
	}
	return users
}
