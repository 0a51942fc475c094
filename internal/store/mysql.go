package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/abstimmung-app/backend/internal/model/vote"
)

// MySQL persists records through gorm. Reference lists are stored as JSON
// columns; the record-level serialization in the database is what the core
// relies on for durability, not for cross-record transactions.
type MySQL struct {
	db *gorm.DB
}

// NewMySQL opens the database and migrates the schema.
func NewMySQL(dsn string) (*MySQL, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.AutoMigrate(&userRecord{}, &sessionRecord{}, &surveyRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &MySQL{db: db}, nil
}

type userRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;size:191"`
	Email        string
	ShownName    string
	Anonymous    bool
	PasswordHash string
}

func (userRecord) TableName() string { return "users" }

type sessionRecord struct {
	ID           string   `gorm:"primaryKey;size:36"`
	Owner        string   `gorm:"size:36"`
	Participants []string `gorm:"serializer:json"`
	Surveys      []string `gorm:"serializer:json"`
	Name         string
	Description  string
	IsActive     bool
}

func (sessionRecord) TableName() string { return "sessions" }

type surveyRecord struct {
	ID              string `gorm:"primaryKey;size:36"`
	SurveySession   string `gorm:"index;size:36"`
	Creator         string `gorm:"size:36"`
	Name            string
	Description     string
	Opened          bool
	Anonymous       bool
	AllowEnthaltung bool
	Approve         []string `gorm:"serializer:json"`
	Deny            []string `gorm:"serializer:json"`
	Abstain         []string `gorm:"serializer:json"`
	Participants    []string `gorm:"serializer:json"`
}

func (surveyRecord) TableName() string { return "surveys" }

func (s *MySQL) CreateUser(ctx context.Context, user vote.User) error {
	rec := userRecord(user)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *MySQL) UserByID(ctx context.Context, id string) (vote.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return vote.User{}, wrap("user by id", err)
	}
	return vote.User(rec), nil
}

func (s *MySQL) UserByUsername(ctx context.Context, username string) (vote.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, "username = ?", username).Error; err != nil {
		return vote.User{}, wrap("user by username", err)
	}
	return vote.User(rec), nil
}

func (s *MySQL) CreateSession(ctx context.Context, session vote.Session) error {
	rec := sessionRecord(session)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *MySQL) SessionByID(ctx context.Context, id string) (vote.Session, error) {
	var rec sessionRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return vote.Session{}, wrap("session by id", err)
	}
	return vote.Session(rec), nil
}

func (s *MySQL) UpdateSession(ctx context.Context, session vote.Session) error {
	rec := sessionRecord(session)
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *MySQL) SessionsByParticipant(ctx context.Context, uid string) ([]vote.Session, error) {
	var recs []sessionRecord
	// Participant lists are JSON columns; membership is a JSON containment test.
	err := s.db.WithContext(ctx).
		Where("JSON_CONTAINS(participants, JSON_QUOTE(?))", uid).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("sessions by participant: %w", err)
	}
	sessions := make([]vote.Session, 0, len(recs))
	for _, rec := range recs {
		sessions = append(sessions, vote.Session(rec))
	}
	return sessions, nil
}

func (s *MySQL) CreateSurvey(ctx context.Context, survey vote.Survey) error {
	rec := surveyRecord(survey)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create survey: %w", err)
	}
	return nil
}

func (s *MySQL) SurveyByID(ctx context.Context, id string) (vote.Survey, error) {
	var rec surveyRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return vote.Survey{}, wrap("survey by id", err)
	}
	return vote.Survey(rec), nil
}

func (s *MySQL) UpdateSurvey(ctx context.Context, survey vote.Survey) error {
	rec := surveyRecord(survey)
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("update survey: %w", err)
	}
	return nil
}

func (s *MySQL) SurveysBySession(ctx context.Context, sessionID string) ([]vote.Survey, error) {
	var recs []surveyRecord
	err := s.db.WithContext(ctx).Find(&recs, "survey_session = ?", sessionID).Error
	if err != nil {
		return nil, fmt.Errorf("surveys by session: %w", err)
	}
	surveys := make([]vote.Survey, 0, len(recs))
	for _, rec := range recs {
		surveys = append(surveys, vote.Survey(rec))
	}
	return surveys, nil
}

func wrap(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
