package app

import (
	"net/http"
	"strings"
)

func (s *HTTPServer) handleCards(w http.ResponseWriter, r *http.Request, session Session, cardID string, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			card, err := s.service.GetCard(r.Context(), cardID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, card)
		case http.MethodPatch:
			if !s.requireWrite(w, session) {
				return
			}
			var body UpdateCardInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			card, err := s.service.UpdateCard(r.Context(), cardID, body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, card)
		case http.MethodDelete:
			if !s.requireWrite(w, session) {
				return
			}
			if err := s.service.DeleteCard(r.Context(), cardID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if r.Method != http.MethodGet && !s.requireWrite(w, session) {
		return
	}

	switch parts[0] + " " + r.Method {
	case "move POST":
		var body MoveCardInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.MoveCard(r.Context(), cardID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case "expenses GET":
		items, err := s.service.ListExpenses(r.Context(), cardID)
		respondItems(s, w, r, items, err)

	case "expenses POST":
		var body ExpenseInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.CreateExpense(r.Context(), cardID, body)
		respondCreated(s, w, r, result, err)

	case "labels GET":
		items, err := s.service.ListLabels(r.Context(), cardID)
		respondItems(s, w, r, items, err)

	case "labels POST":
		var body LabelInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		label, err := s.service.CreateLabel(r.Context(), cardID, body)
		respondCreated(s, w, r, label, err)

	case "checklist GET":
		items, err := s.service.ListChecklist(r.Context(), cardID)
		respondItems(s, w, r, items, err)

	case "checklist POST":
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateChecklistItem(r.Context(), cardID, body.Text)
		respondCreated(s, w, r, item, err)

	case "members GET":
		items, err := s.service.ListCardMembers(r.Context(), cardID)
		respondItems(s, w, r, items, err)

	case "members POST":
		var body struct {
			UserID string `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		members, added, err := s.service.AddCardMember(r.Context(), cardID, body.UserID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		status := http.StatusOK
		if added {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{"items": members, "added": added})

	case "comments GET":
		items, err := s.service.ListComments(r.Context(), cardID)
		respondItems(s, w, r, items, err)

	case "comments POST":
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.service.AddComment(r.Context(), session, cardID, body.Content)
		respondCreated(s, w, r, comment, err)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleCardChildren serves the top-level card sub-resource routes:
// /api/expenses/{id}, /api/labels[/{id}], /api/checklist/{id},
// /api/members[/{id}] and /api/comments/{id}.
func (s *HTTPServer) handleCardChildren(w http.ResponseWriter, r *http.Request, session Session, resource string, parts []string) {
	if len(parts) == 0 && r.Method == http.MethodGet {
		switch resource {
		case "labels":
			items, err := s.service.ListLabelsForCards(r.Context(), strings.Split(r.URL.Query().Get("cardIds"), ","))
			respondItems(s, w, r, items, err)
			return
		case "members":
			items, err := s.service.ListAssignableProfiles(r.Context())
			respondItems(s, w, r, items, err)
			return
		}
	}
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if !s.requireWrite(w, session) {
		return
	}
	id := parts[0]

	switch resource + " " + r.Method {
	case "expenses PATCH":
		var body ExpensePatchInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.UpdateExpense(r.Context(), id, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case "expenses DELETE":
		result, err := s.service.DeleteExpense(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case "labels DELETE":
		respondOK(s, w, r, s.service.DeleteLabel(r.Context(), id))

	case "checklist PATCH":
		var body struct {
			IsChecked *bool `json:"isChecked"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.IsChecked == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "isChecked is required", nil)
			return
		}
		item, err := s.service.SetChecklistItemChecked(r.Context(), id, *body.IsChecked)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)

	case "checklist DELETE":
		respondOK(s, w, r, s.service.DeleteChecklistItem(r.Context(), id))

	case "members DELETE":
		respondOK(s, w, r, s.service.RemoveCardMember(r.Context(), id))

	case "comments DELETE":
		respondOK(s, w, r, s.service.DeleteComment(r.Context(), session, id))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func respondItems[T any](s *HTTPServer, w http.ResponseWriter, r *http.Request, items []T, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func respondCreated(s *HTTPServer, w http.ResponseWriter, r *http.Request, payload any, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func respondOK(s *HTTPServer, w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
