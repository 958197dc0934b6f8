package app

import "net/http"

type orderBody struct {
	OrderedIDs []string `json:"orderedIds"`
}

func (s *HTTPServer) handleBoards(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			boards, err := s.service.ListBoards(r.Context())
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": boards})
		case http.MethodPost:
			if !s.requireWrite(w, session) {
				return
			}
			var body CreateBoardInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			board, err := s.service.CreateBoard(r.Context(), session, body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, board)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	boardID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			board, err := s.service.GetBoard(r.Context(), boardID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, board)
		case http.MethodDelete:
			if err := s.service.DeleteBoard(r.Context(), session, boardID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "lists" && r.Method == http.MethodGet:
		lists, err := s.service.ListLists(r.Context(), boardID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": lists})
		return

	case len(parts) == 2 && parts[1] == "lists" && r.Method == http.MethodPost:
		if !s.requireWrite(w, session) {
			return
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		list, err := s.service.CreateList(r.Context(), boardID, body.Title)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, list)
		return

	case len(parts) == 3 && parts[1] == "lists" && parts[2] == "order" && r.Method == http.MethodPut:
		if !s.requireWrite(w, session) {
			return
		}
		var body orderBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updates, err := s.service.ReorderLists(r.Context(), boardID, body.OrderedIDs)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": updates})
		return

	case len(parts) == 2 && parts[1] == "events" && r.Method == http.MethodGet:
		if _, err := s.service.GetBoard(r.Context(), boardID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if s.service.events == nil {
			writeError(w, http.StatusServiceUnavailable, "EVENTS_UNAVAILABLE", "Event stream is not configured", nil)
			return
		}
		s.service.events.ServeSSE(w, r, boardID)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLists(w http.ResponseWriter, r *http.Request, session Session, listID string, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodDelete:
		if !s.requireWrite(w, session) {
			return
		}
		if err := s.service.DeleteList(r.Context(), listID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case len(parts) == 1 && parts[0] == "cards" && r.Method == http.MethodGet:
		cards, err := s.service.ListCards(r.Context(), listID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": cards})
		return

	case len(parts) == 1 && parts[0] == "cards" && r.Method == http.MethodPost:
		if !s.requireWrite(w, session) {
			return
		}
		var body CreateCardInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		card, err := s.service.CreateCard(r.Context(), listID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, card)
		return

	case len(parts) == 2 && parts[0] == "cards" && parts[1] == "order" && r.Method == http.MethodPut:
		if !s.requireWrite(w, session) {
			return
		}
		var body orderBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updates, err := s.service.ReorderCards(r.Context(), listID, body.OrderedIDs)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": updates})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
