package apifake

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/solugarde-client/api"
	"github.com/jrsteele09/solugarde-client/users"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) {
		mux.HandleFunc(pattern, ChainMiddleware(h, append([]func(http.HandlerFunc) http.HandlerFunc{s.recordMiddleware}, mw...)...))
	}

	route("GET /{$}", s.healthHandler)
	route("POST /auth/login", s.loginHandler)
	route("POST /auth/refresh", s.refreshHandler)
	route("GET /auth/me", s.meHandler, s.authMiddleware)
	route("POST /auth/logout", s.logoutHandler, s.authMiddleware)

	route("GET /garderies", s.listGarderiesHandler, s.authMiddleware)
	route("GET /garderies/{id}", s.getGarderieHandler, s.authMiddleware)
	route("GET /job-offers", s.listJobOffersHandler, s.authMiddleware)
	route("GET /job-offers/{id}", s.getJobOfferHandler, s.authMiddleware)
	route("GET /users", s.listUsersHandler, s.authMiddleware)

	route("GET /conversations", s.listConversationsHandler, s.authMiddleware)
	route("GET /conversations/{id}/messages", s.conversationMessagesHandler, s.authMiddleware)
	route("POST /messages", s.createMessageHandler, s.authMiddleware)
	route("PATCH /messages/{id}/read", s.markReadHandler, s.authMiddleware)
	route("GET /messages", s.gatewayHandler)
	return mux
}

// ChainMiddleware applies mw so that the first entry runs outermost
func ChainMiddleware(h http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chained := h
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is required for websocket upgrades
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *Server) recordMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		s.lock.Lock()
		defer s.lock.Unlock()
		s.calls = append(s.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Status:        rec.status,
		})
	}
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.lock.RLock()
		acct, ok := s.userForAccess(bearer(r))
		s.lock.RUnlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, acct)))
	}
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.lock.Lock()
	failing := s.healthFailures > 0
	if failing {
		s.healthFailures--
	}
	s.lock.Unlock()

	if failing {
		writeError(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(HealthBody))
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	acct, ok := s.accounts[req.Email]
	if !ok || acct.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !acct.user.IsActive || acct.user.IsBanned {
		writeError(w, http.StatusUnauthorized, "Account disabled")
		return
	}
	now := time.Now()
	acct.user.LastLoginAt = &now
	writeJSON(w, http.StatusCreated, s.issue(acct))
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	gate := s.refreshGate
	if gate != nil {
		s.refreshWaiting++
	}
	s.lock.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
		}
		s.lock.Lock()
		s.refreshWaiting--
		s.lock.Unlock()
		if r.Context().Err() != nil {
			return
		}
	}

	presented := bearer(r)
	s.lock.Lock()
	defer s.lock.Unlock()
	id, ok := s.refresh[presented]
	if s.rejectRefresh || !ok {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	delete(s.refresh, presented)
	writeJSON(w, http.StatusCreated, s.issue(s.byID[id]))
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	writeJSON(w, http.StatusOK, accountFrom(r.Context()).user)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.revokeUser(accountFrom(r.Context()).user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) listGarderiesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.lock.RLock()
	defer s.lock.RUnlock()
	matched := filter(s.garderies, func(g api.Garderie) bool {
		if region := q.Get("region"); region != "" && g.Region != region {
			return false
		}
		if search := q.Get("search"); search != "" && !strings.Contains(strings.ToLower(g.Name), strings.ToLower(search)) {
			return false
		}
		if active := q.Get("isActive"); active != "" && strconv.FormatBool(g.IsActive) != active {
			return false
		}
		return true
	})
	writeJSON(w, http.StatusOK, paginate(matched, r))
}

func (s *Server) getGarderieHandler(w http.ResponseWriter, r *http.Request) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, g := range s.garderies {
		if g.ID == r.PathValue("id") {
			writeJSON(w, http.StatusOK, g)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Garderie not found")
}

func (s *Server) listJobOffersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.lock.RLock()
	defer s.lock.RUnlock()
	matched := filter(s.jobOffers, func(o api.JobOffer) bool {
		if region := q.Get("region"); region != "" && o.Region != region {
			return false
		}
		if gid := q.Get("garderieId"); gid != "" && (o.Garderie == nil || o.Garderie.ID != gid) {
			return false
		}
		return true
	})
	writeJSON(w, http.StatusOK, paginate(matched, r))
}

func (s *Server) getJobOfferHandler(w http.ResponseWriter, r *http.Request) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, o := range s.jobOffers {
		if o.ID == r.PathValue("id") {
			writeJSON(w, http.StatusOK, o)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Job offer not found")
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.lock.RLock()
	defer s.lock.RUnlock()
	if !accountFrom(r.Context()).user.IsAdmin() {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return
	}
	all := make([]users.User, 0, len(s.byID))
	for _, acct := range s.byID {
		all = append(all, acct.user)
	}
	matched := filter(all, func(u users.User) bool {
		return q.Get("role") == "" || string(u.Role) == q.Get("role")
	})
	writeJSON(w, http.StatusOK, paginate(matched, r))
}

func (s *Server) listConversationsHandler(w http.ResponseWriter, _ *http.Request) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	writeJSON(w, http.StatusOK, append([]api.Conversation{}, s.conversations...))
}

func (s *Server) conversationMessagesHandler(w http.ResponseWriter, r *http.Request) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	writeJSON(w, http.StatusOK, paginate(s.messages[r.PathValue("id")], r))
}

func (s *Server) createMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req api.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "body should not be empty")
		return
	}
	s.lock.Lock()
	msg := s.appendMessage(req.ConversationID, accountFrom(r.Context()).user.ID, req.Body)
	s.lock.Unlock()

	s.broadcast(eventReceive, msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) markReadHandler(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	receipt, ok := s.markRead(r.PathValue("id"))
	s.lock.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	s.broadcast(eventRead, receipt)
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) appendMessage(conversationID, senderID, body string) api.Message {
	msg := api.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        body,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg
}

// ReadReceipt is the payload of a message:read event
type ReadReceipt struct {
	ID     string    `json:"id"`
	ReadAt time.Time `json:"readAt"`
}

func (s *Server) markRead(messageID string) (ReadReceipt, bool) {
	for convID, msgs := range s.messages {
		for i := range msgs {
			if msgs[i].ID == messageID {
				now := time.Now().UTC()
				s.messages[convID][i].ReadAt = &now
				return ReadReceipt{ID: messageID, ReadAt: now}, true
			}
		}
	}
	return ReadReceipt{}, false
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

func paginate[T any](items []T, r *http.Request) api.PaginatedResponse[T] {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 10
	}
	start := min((page-1)*limit, len(items))
	end := min(start+limit, len(items))
	return api.PaginatedResponse[T]{
		Data:       append([]T{}, items[start:end]...),
		Total:      len(items),
		Page:       page,
		Limit:      limit,
		TotalPages: (len(items) + limit - 1) / limit,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
		"error":      http.StatusText(status),
	})
}
