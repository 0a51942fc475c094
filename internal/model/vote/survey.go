package vote

// Choice is a ballot outcome. The wire protocol transports it as the numeric
// sendID field: 0 approve, 1 deny, 2 abstain.
type Choice int

const (
	ChoiceApprove Choice = iota
	ChoiceDeny
	ChoiceAbstain
)

// Known reports whether c is one of the three defined outcomes.
func (c Choice) Known() bool {
	switch c {
	case ChoiceApprove, ChoiceDeny, ChoiceAbstain:
		return true
	}
	return false
}

// Survey is a single poll scoped to exactly one session. The three ballot
// sequences hold ballot identities; Participants holds the real voter ids,
// which diverge from ballot contents when the survey is anonymous.
type Survey struct {
	ID              string   `json:"id"`
	SurveySession   string   `json:"surveySession"`
	Creator         string   `json:"creator"`
	Name            string   `json:"surveyName"`
	Description     string   `json:"surveyDescription"`
	Opened          bool     `json:"surveyOpened"`
	Anonymous       bool     `json:"anonymous"`
	AllowEnthaltung bool     `json:"allowEnthaltung"`
	Approve         []string `json:"approve"`
	Deny            []string `json:"deny"`
	Abstain         []string `json:"abstain"`
	Participants    []string `json:"participants"`
}

// HasVoted reports whether uid already appears in the survey's participant set.
func (s Survey) HasVoted(uid string) bool {
	for _, p := range s.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// Tally returns the current per-outcome ballot counts.
func (s Survey) Tally() (approve, deny, abstain int) {
	return len(s.Approve), len(s.Deny), len(s.Abstain)
}

// SurveyDetail is a survey with every reference list resolved to public users.
type SurveyDetail struct {
	Survey
	ParticipantUsers []PublicUser `json:"participantUsers"`
	ApproveUsers     []PublicUser `json:"approveUsers"`
	DenyUsers        []PublicUser `json:"denyUsers"`
	AbstainUsers     []PublicUser `json:"abstainUsers"`
}
