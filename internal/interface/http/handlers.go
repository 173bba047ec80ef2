package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/command"
	"github.com/campus-enroll/registration-hub/internal/application/query"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Registration Hub API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":    "/health",
			"steps":     "/api/v1/registration/steps/{step}",
			"progress":  "/api/v1/registration/progress",
			"status":    "/api/v1/registration/status",
			"courses":   "/api/v1/courses",
			"countries": "/api/v1/countries",
			"admin":     "/api/v1/admin",
			"metrics":   "/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		status.Version = s.config.Version
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, r, http.StatusOK, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.config.Version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// StepResponse is the body of a successful step submission.
type StepResponse struct {
	UserID   uuid.UUID          `json:"user_id"`
	Step     int                `json:"step"`
	StepName string             `json:"step_name"`
	Progress *query.ProgressDTO `json:"progress,omitempty"`

	Account    *AccountResponse    `json:"account,omitempty"`
	Selection  *SelectionResponse  `json:"course_selection,omitempty"`
	Payment    *query.PaymentDTO   `json:"payment,omitempty"`
	Completion *CompletionResponse `json:"completion,omitempty"`
}

// AccountResponse is returned by the account step. The verification token is
// mailed, never echoed.
type AccountResponse struct {
	User query.UserDTO `json:"user"`
}

// SelectionResponse is the priced course selection.
type SelectionResponse struct {
	CourseIDs          []uuid.UUID `json:"course_ids"`
	StudyDuration      int         `json:"study_duration"`
	Subtotal           float64     `json:"subtotal"`
	DiscountPercentage int         `json:"discount_percentage"`
	Discount           float64     `json:"discount"`
	TotalFee           float64     `json:"total_fee"`
}

// CompletionResponse reports a finalized registration.
type CompletionResponse struct {
	IsCompleted     bool       `json:"is_completed"`
	CompletionDate  *time.Time `json:"completion_date"`
	FirstCompletion bool       `json:"first_completion"`
}

func newCompletionResponse(res *registration.FinalizeResult) *CompletionResponse {
	if res == nil || res.Status == nil {
		return nil
	}
	return &CompletionResponse{
		IsCompleted:     res.Status.IsCompleted,
		CompletionDate:  res.Status.CompletionDate,
		FirstCompletion: res.FirstCompletion,
	}
}

func newStepResponse(res *command.SubmitStepResult) StepResponse {
	out := StepResponse{
		UserID:   res.UserID,
		Step:     int(res.Step),
		StepName: res.Step.Name(),
	}
	if res.Progress != nil {
		out.Progress = query.NewProgressDTO(res.Progress)
	}
	if res.Account != nil && res.Account.User != nil {
		out.Account = &AccountResponse{User: query.NewUserDTO(res.Account.User)}
	}
	if sel := res.Selection; sel != nil {
		out.Selection = &SelectionResponse{
			CourseIDs:          sel.CourseIDs,
			StudyDuration:      sel.StudyDuration,
			Subtotal:           sel.Price.Subtotal.Float(),
			DiscountPercentage: sel.Price.DiscountPercentage,
			Discount:           sel.Price.Discount.Float(),
			TotalFee:           sel.TotalFee().Float(),
		}
	}
	if res.Payment != nil {
		out.Payment = query.NewPaymentDTO(res.Payment)
	}
	out.Completion = newCompletionResponse(res.Completion)
	return out
}

// handleSubmitStep handles POST /api/v1/registration/steps/{step}. The body
// is the step payload, including the "user" reference from step 2 on.
func (s *Server) handleSubmitStep(w http.ResponseWriter, r *http.Request) {
	if s.deps.SubmitStep == nil {
		notConfigured(w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		if tooLarge := new(http.MaxBytesError); !errors.As(err, &tooLarge) {
			err = shared.FieldError("body", "request body could not be read")
		}
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.SubmitStep.Handle(r.Context(), command.SubmitStepCommand{
		StepName: r.PathValue("step"),
		Body:     body,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Step == registration.StepAccount {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, newStepResponse(res))
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registration == nil {
		notConfigured(w)
		return
	}
	ref, ok := s.userRef(w, r)
	if !ok {
		return
	}
	dto, err := s.deps.Registration.Progress(r.Context(), ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registration == nil {
		notConfigured(w)
		return
	}
	ref, ok := s.userRef(w, r)
	if !ok {
		return
	}
	dto, err := s.deps.Registration.Status(r.Context(), ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Summary == nil {
		notConfigured(w)
		return
	}
	ref, ok := s.userRef(w, r)
	if !ok {
		return
	}
	dto, err := s.deps.Summary.Handle(r.Context(), ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type userRequest struct {
	User string `json:"user"`
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if s.deps.Finalize == nil {
		notConfigured(w)
		return
	}
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.User) == "" {
		s.writeError(w, r, shared.FieldError("user", "email or user id is required"))
		return
	}

	res, err := s.deps.Finalize.Handle(r.Context(), command.FinalizeCommand{UserRef: req.User})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"user_id":    res.UserID,
		"progress":   query.NewProgressDTO(res.Result.Progress),
		"completion": newCompletionResponse(res.Result),
	})
}

type notesRequest struct {
	User  string `json:"user"`
	Notes string `json:"progress_notes"`
}

func (s *Server) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdateNotes == nil {
		notConfigured(w)
		return
	}
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.User) == "" {
		s.writeError(w, r, shared.FieldError("user", "email or user id is required"))
		return
	}

	progress, err := s.deps.UpdateNotes.Handle(r.Context(), command.UpdateNotesCommand{UserRef: req.User, Notes: req.Notes})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.NewProgressDTO(progress))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT & CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleEmailAvailability(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		notConfigured(w)
		return
	}
	email := r.URL.Query().Get("email")
	available, err := s.deps.Catalog.EmailAvailable(r.Context(), email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"email":     shared.NormalizeEmail(email).String(),
		"available": available,
	})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if s.deps.VerifyEmail == nil {
		notConfigured(w)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		s.writeError(w, r, shared.FieldError("token", "verification token is required"))
		return
	}

	user, err := s.deps.VerifyEmail.Handle(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.NewUserDTO(user))
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	s.listCourses(w, r, true)
}

func (s *Server) listCourses(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	if s.deps.Catalog == nil {
		notConfigured(w)
		return
	}
	page, err := s.deps.Catalog.Courses(r.Context(), activeOnly, pagination(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePage(w, r, page)
}

func (s *Server) handleListCountries(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		notConfigured(w)
		return
	}
	countries, err := s.deps.Catalog.Countries(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, countries)
}

func (s *Server) handleListCities(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		notConfigured(w)
		return
	}
	cities, err := s.deps.Catalog.Cities(r.Context(), r.PathValue("code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cities)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type courseRequest struct {
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	Fee                float64 `json:"fee"`
	Duration           string  `json:"duration"`
	DiscountPercentage int     `json:"discount_percentage"`
	IsActive           *bool   `json:"is_active"`
}

func (c courseRequest) command(id *uuid.UUID) command.CourseCommand {
	active := true
	if c.IsActive != nil {
		active = *c.IsActive
	}
	return command.CourseCommand{
		ID:                 id,
		Name:               c.Name,
		Description:        c.Description,
		Fee:                c.Fee,
		Duration:           c.Duration,
		DiscountPercentage: c.DiscountPercentage,
		IsActive:           active,
	}
}

func (s *Server) handleAdminListCourses(w http.ResponseWriter, r *http.Request) {
	s.listCourses(w, r, getQueryParamBool(r, "active"))
}

func (s *Server) handleAdminCreateCourse(w http.ResponseWriter, r *http.Request) {
	s.saveCourse(w, r, nil, http.StatusCreated)
}

func (s *Server) handleAdminUpdateCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.saveCourse(w, r, &id, http.StatusOK)
}

func (s *Server) saveCourse(w http.ResponseWriter, r *http.Request, id *uuid.UUID, status int) {
	if s.deps.CourseAdmin == nil {
		notConfigured(w)
		return
	}
	var req courseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.deps.CourseAdmin.Save(r.Context(), req.command(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, status, query.NewCourseDTO(c))
}

func (s *Server) handleAdminSetCourseActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.CourseAdmin == nil {
			notConfigured(w)
			return
		}
		id, ok := s.pathID(w, r)
		if !ok {
			return
		}
		c, err := s.deps.CourseAdmin.SetActive(r.Context(), id, active)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, query.NewCourseDTO(c))
	}
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admin == nil {
		notConfigured(w)
		return
	}
	page, err := s.deps.Admin.Users(r.Context(), account.ListOptions{
		Pagination:     pagination(r),
		IncludeDeleted: getQueryParamBool(r, "include_deleted"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePage(w, r, page)
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.UserAdmin == nil {
		notConfigured(w)
		return
	}
	var cmd command.CreateUserCommand
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.deps.UserAdmin.Create(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.NewUserDTO(user))
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.UserAdmin == nil {
		notConfigured(w)
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.UserAdmin.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type overrideStepRequest struct {
	Step  string  `json:"step"`
	Notes *string `json:"notes"`
}

// handleAdminOverrideStep accepts the step as a name or a number.
func (s *Server) handleAdminOverrideStep(w http.ResponseWriter, r *http.Request) {
	if s.deps.UserAdmin == nil {
		notConfigured(w)
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var raw map[string]json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := parseOverride(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	step, err := registration.ParseStepName(req.Step)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	progress, err := s.deps.UserAdmin.OverrideStep(r.Context(), command.OverrideStepCommand{UserID: id, Step: step, Notes: req.Notes})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.NewProgressDTO(progress))
}

func parseOverride(raw map[string]json.RawMessage) (overrideStepRequest, error) {
	var req overrideStepRequest
	stepRaw, ok := raw["step"]
	if !ok {
		return req, shared.FieldError("step", "step is required")
	}
	var n int
	if err := json.Unmarshal(stepRaw, &n); err == nil {
		req.Step = strconv.Itoa(n)
	} else if err := json.Unmarshal(stepRaw, &req.Step); err != nil {
		return req, shared.FieldError("step", "must be a step name or number")
	}
	if notesRaw, ok := raw["notes"]; ok {
		var notes string
		if err := json.Unmarshal(notesRaw, &notes); err != nil {
			return req, shared.FieldError("notes", "must be a string")
		}
		req.Notes = &notes
	}
	return req, nil
}

func (s *Server) handleAdminListPayments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admin == nil {
		notConfigured(w)
		return
	}
	opts := payment.ListOptions{
		Pagination: pagination(r),
		Status:     payment.Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, r, shared.FieldError("user_id", "must be a UUID"))
			return
		}
		opts.UserID = &id
	}

	page, err := s.deps.Admin.Payments(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePage(w, r, page)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func notConfigured(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotImplemented, "not_implemented", "handler not configured")
}

func (s *Server) userRef(w http.ResponseWriter, r *http.Request) (string, bool) {
	ref := strings.TrimSpace(r.URL.Query().Get("user"))
	if ref == "" {
		s.writeError(w, r, shared.FieldError("user", "email or user id is required"))
		return "", false
	}
	return ref, true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, shared.FieldError("id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return shared.FieldError("body", "request body is required")
		default:
			return shared.FieldError("body", "malformed JSON")
		}
	}
	return nil
}

func pagination(r *http.Request) shared.Pagination {
	return shared.NewPagination(getQueryParamInt(r, "page", 1), getQueryParamInt(r, "page_size", shared.DefaultPageSize))
}

func writePage[T any](w http.ResponseWriter, r *http.Request, page query.PageDTO[T]) {
	writeJSONWithMeta(w, r, http.StatusOK, page.Items, &ResponseMeta{
		TotalCount: page.TotalCount,
		Page:       page.Page,
		PageSize:   page.PageSize,
		HasMore:    page.HasMore,
	})
}
