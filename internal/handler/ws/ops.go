package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/abstimmung-app/backend/internal/dispatch"
	"github.com/abstimmung-app/backend/internal/model/event"
	"github.com/abstimmung-app/backend/internal/model/vote"
	"github.com/abstimmung-app/backend/internal/registry"
	"github.com/abstimmung-app/backend/internal/service/auth"
	"github.com/abstimmung-app/backend/internal/service/voting"
)

// answer is one response payload. Clients discriminate on type ("Answer" or
// "Result") and, for type Result, on the result field ("Error", "Success",
// "Already voted", "Unsuccessful", ...).
type answer map[string]any

func errorAnswer(cause any) answer {
	return answer{"type": "Result", "result": "Error", "error": cause}
}

// send delivers one response payload with the request's correlation token.
// Every dispatched request gets exactly one response.
func (h *Handler) send(client *registry.Client, payload any, location json.RawMessage) {
	env, err := event.Message(payload, location)
	if err != nil {
		log.Printf("[ws] encode response failed: %v", err)
		return
	}
	if err := client.Send(env); err != nil {
		log.Printf("[ws] response send failed: %v", err)
	}
}

func (h *Handler) buildTable() *dispatch.Table {
	t := dispatch.New(h.missingType)
	t.Register("registerUser", h.registerUser)
	t.Register("loginUser", h.loginUser)
	t.Register("createSession", h.createSession)
	t.Register("updateSession", h.updateSession)
	t.Register("stopSession", h.stopSession)
	t.Register("joinSession", h.joinSession)
	t.Register("leaveSession", h.leaveSession)
	t.Register("createSurvey", h.createSurvey)
	t.Register("voteForSurvey", h.voteForSurvey)
	t.Register("getSessionFromID", h.getSessionFromID)
	t.Register("getSurveyFromID", h.getSurveyFromID)
	t.Register("getAllSessions", h.getAllSessions)
	t.Register("getAllSessionsNames", h.getAllSessionsNames)
	t.Register("getAllSurveys", h.getAllSurveys)
	t.Register("getAllSurveysFromSession", h.getAllSurveysFromSession)
	t.Register("getAllSessionsAndSurveys", h.getAllSessionsAndSurveys)
	return t
}

// missingType answers unknown operations by echoing the payload back as a
// typed error, keeping the connection usable for mismatched client versions.
func (h *Handler) missingType(_ context.Context, payload event.Payload, client *registry.Client, location json.RawMessage) {
	h.send(client, errorAnswer(payload), location)
}

func (h *Handler) registerUser(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		UserName  string `json:"userName"`
		Password  string `json:"password"`
		Email     string `json:"email"`
		ShownName string `json:"shownName"`
		Anonymous bool   `json:"anonymous"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	user, err := h.auth.Register(ctx, auth.RegisterRequest{
		Username:  req.UserName,
		Password:  req.Password,
		Email:     req.Email,
		ShownName: req.ShownName,
		Anonymous: req.Anonymous,
	})
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Result", "result": "Success", "uid": user.ID}, location)
}

func (h *Handler) loginUser(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		UserName string `json:"userName"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	uid, err := h.auth.Login(ctx, req.UserName, req.Password)
	if err != nil {
		// Any failure reads the same to the client: no hint whether the
		// handle exists.
		h.send(client, answer{"type": "Result", "result": "Unsuccessful"}, location)
		return
	}
	h.send(client, answer{"type": "Result", "result": "Success", "uid": uid}, location)
}

func (h *Handler) createSession(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		UID         string `json:"uid"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	session, err := h.votes.CreateSession(ctx, req.UID, req.Name, req.Description)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Answer", "result": session.ID}, location)
}

func (h *Handler) updateSession(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	if err := h.votes.UpdateSession(ctx, req.ID, req.Name, req.Description); err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Answer", "result": "Session updated Successful"}, location)
}

func (h *Handler) stopSession(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	if err := h.votes.StopSession(ctx, req.SessionID); err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Answer", "result": "Session stopped Successful"}, location)
}

func (h *Handler) joinSession(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
		UID       string `json:"uid"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	session, err := h.votes.JoinSession(ctx, req.SessionID, req.UID)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Result", "result": "Session", "session": session}, location)
}

func (h *Handler) leaveSession(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
		UID       string `json:"uid"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	if err := h.votes.LeaveSession(ctx, req.SessionID, req.UID); err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Answer", "result": "Leave successful"}, location)
}

func (h *Handler) createSurvey(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		SurveySession     string `json:"surveySession"`
		Creator           string `json:"creator"`
		SurveyName        string `json:"surveyName"`
		SurveyDescription string `json:"surveyDescription"`
		SurveyOpened      bool   `json:"surveyOpened"`
		Anonymous         bool   `json:"anonymous"`
		AllowEnthaltung   bool   `json:"allowEnthaltung"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	survey, err := h.votes.CreateSurvey(ctx, voting.CreateSurveyRequest{
		SessionID:       req.SurveySession,
		Creator:         req.Creator,
		Name:            req.SurveyName,
		Description:     req.SurveyDescription,
		Opened:          req.SurveyOpened,
		Anonymous:       req.Anonymous,
		AllowEnthaltung: req.AllowEnthaltung,
	})
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Answer", "result": survey.ID}, location)
}

func (h *Handler) voteForSurvey(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		SurveyID string `json:"surveyID"`
		UID      string `json:"uid"`
		SendID   int    `json:"sendID"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	survey, err := h.votes.CastVote(ctx, req.SurveyID, req.UID, vote.Choice(req.SendID))
	switch {
	case err == nil:
		h.send(client, answer{"type": "Answer", "result": "Voted Successful", "event": survey}, location)
	case errors.Is(err, voting.ErrAlreadyVoted):
		h.send(client, answer{"type": "Result", "result": "Already voted"}, location)
	default:
		h.send(client, errorAnswer(err.Error()), location)
	}
}

func (h *Handler) getSessionFromID(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionID"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	session, err := h.votes.SessionByID(ctx, req.SessionID)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Answer", "result": "Session", "session": session}, location)
}

func (h *Handler) getSurveyFromID(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		SurveyID string `json:"surveyId"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	survey, err := h.votes.SurveyByID(ctx, req.SurveyID)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}

	counts, err := h.votes.Tally(ctx, req.SurveyID)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Answer", "result": "Survey", "survey": survey, "tally": counts}, location)
}

func (h *Handler) getAllSessions(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	sessions, err := h.votes.SessionsByParticipant(ctx, req.UID)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Result", "result": "Sessions", "sessions": sessions}, location)
}

func (h *Handler) getAllSessionsNames(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	names, err := h.votes.SessionNames(ctx, req.UID)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Result", "result": "Sessions", "sessions": names}, location)
}

func (h *Handler) getAllSurveys(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	surveys, err := h.votes.SurveysByParticipant(ctx, req.UID)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Result", "result": "Surveys", "surveys": surveys}, location)
}

func (h *Handler) getAllSurveysFromSession(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	surveys, err := h.votes.SurveysBySession(ctx, req.SessionID)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Result", "result": "Surveys", "surveys": surveys}, location)
}

func (h *Handler) getAllSessionsAndSurveys(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage) {
	var req struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		h.send(client, errorAnswer("invalid arguments"), location)
		return
	}

	overviews, err := h.votes.SessionOverviews(ctx, req.UID)
	if err != nil {
		h.send(client, errorAnswer(err.Error()), location)
		return
	}
	h.send(client, answer{"type": "Result", "result": "Sessions", "sessions": overviews}, location)
}
