package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/chiralgate/gate"
	"github.com/jmcleod/chiralgate/session"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 200
	maxBodyBytes     = 64 << 10
)

// apiActor is recorded as the resolving administrator for actions taken
// through the HTTP API rather than a chat command.
const apiActor int64 = 0

// ListSessions handles GET /sessions.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	pending := a.coord.Pending()
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].SubjectID < pending[j].SubjectID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	limit, offset := parsePagination(r)
	start, end, meta := paginateSlice(len(pending), limit, offset)
	views := make([]SessionView, 0, end-start)
	for _, s := range pending[start:end] {
		views = append(views, newSessionView(s))
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: views, PaginationMeta: meta})
}

// ApproveSession handles POST /sessions/{subject}/approve.
func (a *API) ApproveSession(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectParam(r)
	if err != nil {
		mapError(w, err)
		return
	}
	msg, err := a.coord.Approve(r.Context(), apiActor, subject)
	a.respondAction(w, r, "approve", subject, msg, err)
}

// RejectSession handles POST /sessions/{subject}/reject. The body is optional.
func (a *API) RejectSession(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectParam(r)
	if err != nil {
		mapError(w, err)
		return
	}
	var req RejectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := a.coord.Reject(r.Context(), apiActor, subject, req.Reason)
	a.respondAction(w, r, "reject", subject, msg, err)
}

func (a *API) respondAction(w http.ResponseWriter, r *http.Request, action string, subject int64, msg string, err error) {
	if err != nil {
		a.logger.Warn("admin action failed",
			"action", action,
			"subject_id", subject,
			"remote_addr", r.RemoteAddr,
			"error", err.Error(),
		)
		if errors.Is(err, gate.ErrNoSession) {
			writeError(w, http.StatusNotFound, msg)
			return
		}
		mapError(w, err)
		return
	}
	a.logger.Info("admin action", "action", action, "subject_id", subject, "remote_addr", r.RemoteAddr)
	writeJSON(w, http.StatusOK, ActionResponse{Message: msg})
}

// Sweep handles POST /sweep.
func (a *API) Sweep(w http.ResponseWriter, r *http.Request) {
	n := a.sweeper.SweepOnce(r.Context())
	writeJSON(w, http.StatusOK, SweepResponse{Expired: n})
}

// ListOutcomes handles GET /outcomes.
func (a *API) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	outcomes, total, err := a.history.List(limit, offset)
	if err != nil {
		mapError(w, fmt.Errorf("listing outcomes: %w", err))
		return
	}
	if outcomes == nil {
		outcomes = []session.Outcome{}
	}
	writeJSON(w, http.StatusOK, ListOutcomesResponse{
		Outcomes: outcomes,
		PaginationMeta: PaginationMeta{
			TotalCount: total,
			Limit:      limit,
			Offset:     offset,
			HasMore:    offset+len(outcomes) < total,
		},
	})
}

// SubjectOutcomes handles GET /outcomes/{subject}.
func (a *API) SubjectOutcomes(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectParam(r)
	if err != nil {
		mapError(w, err)
		return
	}
	outcomes, err := a.history.ForSubject(subject)
	if err != nil {
		mapError(w, fmt.Errorf("outcomes for %d: %w", subject, err))
		return
	}

	limit, offset := parsePagination(r)
	start, end, meta := paginateSlice(len(outcomes), limit, offset)
	writeJSON(w, http.StatusOK, ListOutcomesResponse{
		Outcomes:       append([]session.Outcome{}, outcomes[start:end]...),
		PaginationMeta: meta,
	})
}

func subjectParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "subject")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: subject must be a positive user id, got %q", gate.ErrInvalidInput, raw)
	}
	return id, nil
}

// parsePagination reads the limit and offset query parameters. Values that
// are missing or not positive keep their defaults and limit is capped.
func parsePagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit = defaultPageLimit
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, maxPageLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}

// paginateSlice returns the bounds of one page of a total-sized collection.
// An offset past the end yields an empty page.
func paginateSlice(total, limit, offset int) (start, end int, meta PaginationMeta) {
	start = min(offset, total)
	end = min(start+limit, total)
	return start, end, PaginationMeta{
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < total,
	}
}
