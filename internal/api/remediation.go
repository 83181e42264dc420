package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/p-n-ai/pai-course/internal/remediation"
)

type startRemediationRequest struct {
	ModuleID string `json:"module_id" validate:"required"`
	Step     string `json:"step" validate:"required"`
	Language string `json:"language" validate:"omitempty,bcp47_language_tag"`
}

type messageRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type socketError struct {
	Error string `json:"error"`
}

// handleStartRemediation hands the latest attempt at a quiz step to the tutor.
func (s *Server) handleStartRemediation(w http.ResponseWriter, r *http.Request) {
	var req startRemediationRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.openSession(r, req.ModuleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	attempt, ok := sess.QuizAttempt(req.Step)
	if !ok {
		writeError(w, r, errNoQuizAttempt)
		return
	}

	turn, err := s.remediation.Start(r.Context(), chi.URLParam(r, "learnerID"), remediation.Handoff{
		ModuleID:     req.ModuleID,
		QuizID:       attempt.QuizID,
		Missed:       attempt.Missed,
		CorrectCount: attempt.Score,
		TotalCount:   attempt.Total,
		Language:     req.Language,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, turn)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.remediation.Conversation(r.Context(), chi.URLParam(r, "learnerID"), chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleRemediationMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	turn, err := s.remediation.Reply(r.Context(), chi.URLParam(r, "learnerID"), chi.URLParam(r, "conversationID"), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleEndRemediation(w http.ResponseWriter, r *http.Request) {
	if err := s.remediation.End(r.Context(), chi.URLParam(r, "learnerID"), chi.URLParam(r, "conversationID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemediationSocket carries a conversation over a WebSocket: each
// {"text": ...} frame gets a Turn or an {"error": ...} frame back.
func (s *Server) handleRemediationSocket(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	convID := chi.URLParam(r, "conversationID")
	if _, err := s.remediation.Conversation(r.Context(), learnerID, convID); err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "conversation_id", convID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		var msg messageRequest
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				slog.Debug("websocket read ended", "conversation_id", convID, "error", err)
			}
			return
		}

		var reply any
		if err := s.validate.Struct(msg); err != nil {
			reply = socketError{Error: "text is required and at most 2000 characters"}
		} else if turn, err := s.remediation.Reply(ctx, learnerID, convID, msg.Text); err != nil {
			reply = socketError{Error: err.Error()}
			if errors.Is(err, remediation.ErrConversationEnded) {
				_ = wsjson.Write(ctx, conn, reply)
				conn.Close(websocket.StatusNormalClosure, "conversation ended")
				return
			}
		} else {
			reply = turn
		}

		if err := wsjson.Write(ctx, conn, reply); err != nil {
			slog.Debug("websocket write failed", "conversation_id", convID, "error", err)
			return
		}
	}
}
