package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/abstimmung-app/backend/internal/model/vote"
)

// Memory is the in-process Store used in tests and when no MYSQL_DSN is
// configured. Reads return copies so callers can mutate freely.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]vote.User
	sessions map[string]vote.Session
	surveys  map[string]vote.Survey
}

// NewMemory bootstraps an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]vote.User),
		sessions: make(map[string]vote.Session),
		surveys:  make(map[string]vote.Survey),
	}
}

func (m *Memory) CreateUser(_ context.Context, user vote.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return fmt.Errorf("create user: username %q already taken", user.Username)
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *Memory) UserByID(_ context.Context, id string) (vote.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return vote.User{}, ErrNotFound
	}
	return user, nil
}

func (m *Memory) UserByUsername(_ context.Context, username string) (vote.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return vote.User{}, ErrNotFound
}

func (m *Memory) CreateSession(_ context.Context, session vote.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = copySession(session)
	return nil
}

func (m *Memory) SessionByID(_ context.Context, id string) (vote.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return vote.Session{}, ErrNotFound
	}
	return copySession(session), nil
}

func (m *Memory) UpdateSession(_ context.Context, session vote.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	m.sessions[session.ID] = copySession(session)
	return nil
}

func (m *Memory) SessionsByParticipant(_ context.Context, uid string) ([]vote.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []vote.Session
	for _, session := range m.sessions {
		if session.HasParticipant(uid) {
			result = append(result, copySession(session))
		}
	}
	return result, nil
}

func (m *Memory) CreateSurvey(_ context.Context, survey vote.Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surveys[survey.ID] = copySurvey(survey)
	return nil
}

func (m *Memory) SurveyByID(_ context.Context, id string) (vote.Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	survey, ok := m.surveys[id]
	if !ok {
		return vote.Survey{}, ErrNotFound
	}
	return copySurvey(survey), nil
}

func (m *Memory) UpdateSurvey(_ context.Context, survey vote.Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surveys[survey.ID]; !ok {
		return ErrNotFound
	}
	m.surveys[survey.ID] = copySurvey(survey)
	return nil
}

func (m *Memory) SurveysBySession(_ context.Context, sessionID string) ([]vote.Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []vote.Survey
	for _, survey := range m.surveys {
		if survey.SurveySession == sessionID {
			result = append(result, copySurvey(survey))
		}
	}
	return result, nil
}

func copySession(s vote.Session) vote.Session {
	s.Participants = append([]string(nil), s.Participants...)
	s.Surveys = append([]string(nil), s.Surveys...)
	return s
}

func copySurvey(s vote.Survey) vote.Survey {
	s.Approve = append([]string(nil), s.Approve...)
	s.Deny = append([]string(nil), s.Deny...)
	s.Abstain = append([]string(nil), s.Abstain...)
	s.Participants = append([]string(nil), s.Participants...)
	return s
}
