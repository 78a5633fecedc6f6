package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"dreampulse/internal/domain"
	"dreampulse/internal/registry"
	"dreampulse/internal/storage"
	"dreampulse/pkg/logx"
)

// Scheduler is the timer-table side the API drives on configuration changes.
type Scheduler interface {
	Rearm(ctx context.Context, userID string, sched domain.Schedule) error
	Disarm(userID, scheduleID string) bool
	DisarmUser(userID string) int
	Armed(userID, scheduleID string) bool
	NextFiring(userID, scheduleID string) time.Time
}

// Dispatcher is the immediate-delivery side (test notifications).
type Dispatcher interface {
	Send(ctx context.Context, userID, typ, title, body string, data map[string]string) bool
}

// errScheduleNotFound aborts a registry.Update from inside the mutation
// callback; the handlers map it to 404.
var errScheduleNotFound = errors.New("schedule not found")

type Handler struct {
	store storage.Store
	reg   *registry.Service
	sched Scheduler
	disp  Dispatcher
	log   logx.Logger
}

func NewHandler(store storage.Store, reg *registry.Service, sched Scheduler, disp Dispatcher, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{store: store, reg: reg, sched: sched, disp: disp, log: log}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userID}", h.deleteUser).Methods(http.MethodDelete)

	u := r.PathPrefix("/api/users/{userID}").Subrouter()
	u.HandleFunc("/reality-check", h.getRealityCheck).Methods(http.MethodGet)
	u.HandleFunc("/reality-check", h.putRealityCheck).Methods(http.MethodPut)
	u.HandleFunc("/custom-notifications", h.listCustom).Methods(http.MethodGet)
	u.HandleFunc("/custom-notifications", h.createCustom).Methods(http.MethodPost)
	u.HandleFunc("/custom-notifications/{scheduleID}", h.updateCustom).Methods(http.MethodPut)
	u.HandleFunc("/custom-notifications/{scheduleID}", h.deleteCustom).Methods(http.MethodDelete)
	u.HandleFunc("/recipients", h.listRecipients).Methods(http.MethodGet)
	u.HandleFunc("/recipients", h.addRecipient).Methods(http.MethodPost)
	u.HandleFunc("/recipients", h.removeRecipient).Methods(http.MethodDelete)
	u.HandleFunc("/delivery-log", h.deliveryLog).Methods(http.MethodGet)
	u.HandleFunc("/notifications/test", h.testNotification).Methods(http.MethodPost)

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scheduleView is a schedule plus its live timer state.
type scheduleView struct {
	domain.Schedule
	Armed      bool       `json:"armed"`
	NextFiring *time.Time `json:"nextFiring,omitempty"`
}

func (h *Handler) view(userID string, s domain.Schedule) scheduleView {
	v := scheduleView{Schedule: s, Armed: h.sched.Armed(userID, s.ID)}
	if v.Armed {
		if next := h.sched.NextFiring(userID, s.ID); !next.IsZero() {
			v.NextFiring = &next
		}
	}
	return v
}

// loadOrNewUser treats an unknown user as a fresh one with defaults, so a
// client can configure schedules before registering a first token.
func (h *Handler) loadOrNewUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := h.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.NewUser(userID), nil
	}
	return u, err
}

func (h *Handler) getRealityCheck(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	u, err := h.loadOrNewUser(r.Context(), userID)
	if err != nil {
		jsonError(w, "load user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.view(userID, u.RealityCheck))
}

func (h *Handler) putRealityCheck(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var s domain.Schedule
	if err := decodeStrict(r, &s); err != nil {
		jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.ID = domain.RealityCheckID
	s.Normalize()
	if err := s.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Write through the registry's lock so this read-modify-write can't
	// race a token registration and drop it.
	if _, err := h.reg.Update(r.Context(), userID, func(u *domain.User) error {
		u.RealityCheck = s
		return nil
	}); err != nil {
		jsonError(w, "save user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.sched.Rearm(r.Context(), userID, s); err != nil {
		jsonError(w, "rearm: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.view(userID, s))
}

func (h *Handler) listCustom(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	u, err := h.loadOrNewUser(r.Context(), userID)
	if err != nil {
		jsonError(w, "load user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]scheduleView, 0, len(u.CustomSchedules))
	for _, s := range u.CustomSchedules {
		views = append(views, h.view(userID, s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": views, "count": len(views)})
}

func (h *Handler) createCustom(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var s domain.Schedule
	if err := decodeStrict(r, &s); err != nil {
		jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.ID = uuid.NewString()
	s.Normalize()
	if err := s.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.reg.Update(r.Context(), userID, func(u *domain.User) error {
		u.CustomSchedules = append(u.CustomSchedules, s)
		return nil
	}); err != nil {
		jsonError(w, "save user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.sched.Rearm(r.Context(), userID, s); err != nil {
		jsonError(w, "rearm: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(userID, s))
}

func (h *Handler) updateCustom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, scheduleID := vars["userID"], vars["scheduleID"]

	var s domain.Schedule
	if err := decodeStrict(r, &s); err != nil {
		jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.ID = scheduleID
	s.Normalize()
	if err := s.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	_, err := h.reg.Update(r.Context(), userID, func(u *domain.User) error {
		for i := range u.CustomSchedules {
			if u.CustomSchedules[i].ID == scheduleID {
				u.CustomSchedules[i] = s
				return nil
			}
		}
		return errScheduleNotFound
	})
	if errors.Is(err, errScheduleNotFound) {
		jsonError(w, "schedule not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "save user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.sched.Rearm(r.Context(), userID, s); err != nil {
		jsonError(w, "rearm: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.view(userID, s))
}

func (h *Handler) deleteCustom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, scheduleID := vars["userID"], vars["scheduleID"]

	_, err := h.reg.Update(r.Context(), userID, func(u *domain.User) error {
		kept := u.CustomSchedules[:0]
		found := false
		for _, s := range u.CustomSchedules {
			if s.ID == scheduleID {
				found = true
				continue
			}
			kept = append(kept, s)
		}
		if !found {
			return errScheduleNotFound
		}
		u.CustomSchedules = kept
		return nil
	})
	if errors.Is(err, errScheduleNotFound) {
		jsonError(w, "schedule not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "save user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.sched.Disarm(userID, scheduleID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type recipientRequest struct {
	Token      string `json:"token"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
}

func (h *Handler) addRecipient(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req recipientRequest
	if err := decodeStrict(r, &req); err != nil {
		jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !registry.ValidateFormat(req.Token) {
		jsonError(w, "token failed format validation", http.StatusBadRequest)
		return
	}

	added, err := h.reg.Add(r.Context(), userID, req.Token, req.DeviceInfo)
	if err != nil {
		jsonError(w, "register token: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// A first token can satisfy the recipients precondition, so give every
	// enabled schedule a chance to arm.
	u, err := h.store.GetUser(r.Context(), userID)
	if err == nil {
		for _, s := range u.EnabledSchedules() {
			if err := h.sched.Rearm(r.Context(), userID, s); err != nil {
				h.log.Warn("rearm after token registration failed",
					logx.String("user", userID), logx.String("schedule", s.ID), logx.Err(err))
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

func (h *Handler) removeRecipient(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req recipientRequest
	if err := decodeStrict(r, &req); err != nil {
		jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	removed, err := h.reg.Remove(r.Context(), userID, req.Token)
	if err != nil {
		jsonError(w, "remove token: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

type recipientView struct {
	TokenPrefix string    `json:"tokenPrefix"`
	DeviceInfo  string    `json:"deviceInfo,omitempty"`
	AddedAt     time.Time `json:"addedAt"`
}

func (h *Handler) listRecipients(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	recs, err := h.reg.List(r.Context(), userID)
	if err != nil {
		jsonError(w, "list recipients: "+err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]recipientView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, recipientView{
			TokenPrefix: redactToken(rec.Token),
			DeviceInfo:  rec.DeviceInfo,
			AddedAt:     rec.AddedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipients": views, "count": len(views)})
}

// redactToken keeps enough of a token to recognize a device, never enough
// to push to it.
func redactToken(token string) string {
	const keep = 8
	if len(token) <= keep {
		return token
	}
	return token[:keep] + "…"
}

func (h *Handler) deliveryLog(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	limit := 0
	if l := strings.TrimSpace(r.URL.Query().Get("limit")); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.store.ListDeliveries(r.Context(), userID, limit)
	if err != nil {
		jsonError(w, "list deliveries: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

type testRequest struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

func (h *Handler) testNotification(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req testRequest
	if r.ContentLength != 0 {
		if err := decodeStrict(r, &req); err != nil {
			jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	title := req.Title
	if title == "" {
		title = "Dreampulse"
	}
	body := req.Body
	if body == "" {
		body = "Test notification"
	}

	delivered := h.disp.Send(r.Context(), userID, "test", title, body, nil)
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	cancelled := h.sched.DisarmUser(userID)
	if err := h.reg.RemoveAll(r.Context(), userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "remove recipients: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.store.DeleteUser(r.Context(), userID); err != nil {
		jsonError(w, "delete user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.log.Info("user deleted", logx.String("user", userID), logx.Int("cancelled_timers", cancelled))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cancelledTimers": cancelled})
}
