package vote

// Session is a voting room grouping participants and surveys. Sessions are never
// hard-deleted; stopping a session clears IsActive.
type Session struct {
	ID           string   `json:"id"`
	Owner        string   `json:"owner"`
	Participants []string `json:"participants"`
	Surveys      []string `json:"surveys"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	IsActive     bool     `json:"isActive"`
}

// HasParticipant reports whether uid is a member of the session.
func (s Session) HasParticipant(uid string) bool {
	for _, p := range s.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// SessionDetail is a session with its participant references resolved.
type SessionDetail struct {
	Session
	ParticipantUsers []PublicUser `json:"participantUsers"`
}

// SessionOverview bundles a session with its surveys for the combined listing.
type SessionOverview struct {
	Session
	ParticipantUsers []PublicUser `json:"participantUsers"`
	SurveyRecords    []Survey     `json:"surveyRecords"`
}
