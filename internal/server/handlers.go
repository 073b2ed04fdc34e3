package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andrescamacho/guiatrack/internal/export"
	"github.com/andrescamacho/guiatrack/internal/metrics"
	"github.com/andrescamacho/guiatrack/internal/model"
	"github.com/andrescamacho/guiatrack/internal/service"
)

type registerRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	principal, err := s.auth.Register(r.Context(), req.DisplayName, req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	token, err := s.auth.IssueToken(principal)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"token":     token,
		"principal": principal,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	principal, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	token, err := s.auth.IssueToken(principal)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"principal": principal,
	})
}

type createShipmentRequest struct {
	ID                  string  `json:"id"`
	OwnerEmail          string  `json:"ownerEmail"`
	CustomerName        string  `json:"customerName"`
	Mode                string  `json:"mode"`
	DeclaredMeasurement float64 `json:"declaredMeasurement"`
	PaymentPlan         string  `json:"paymentPlan"`
}

// handleShipments serves the staff collection: GET lists with an id filter and
// a per-state summary, POST registers a new guía.
func (s *Server) handleShipments(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		term := r.URL.Query().Get("q")
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"shipments": s.svc.ListAll(term),
			"summary":   s.svc.Summary(),
		})
	case http.MethodPost:
		var req createShipmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		mode, ok := model.ParseMode(req.Mode)
		if !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
			return
		}
		plan := model.PaymentPlan("")
		if req.PaymentPlan != "" {
			plan, ok = model.ParsePaymentPlan(req.PaymentPlan)
			if !ok {
				respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown payment plan %q", req.PaymentPlan))
				return
			}
		}
		shipment, err := s.svc.CreateShipment(r.Context(), service.CreateShipmentInput{
			ID:                  req.ID,
			OwnerEmail:          req.OwnerEmail,
			CustomerName:        req.CustomerName,
			Mode:                mode,
			DeclaredMeasurement: req.DeclaredMeasurement,
			PaymentPlan:         plan,
		})
		if err != nil {
			respondServiceError(w, err)
			return
		}
		metrics.MutationsTotal.WithLabelValues("create").Inc()
		respondJSON(w, http.StatusCreated, map[string]interface{}{
			"shipment":    shipment,
			"trackingUrl": s.trackingURL(shipment.ID),
		})
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleShipmentRoute dispatches /shipments/{id} and its subresources.
func (s *Server) handleShipmentRoute(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/shipments/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		respondError(w, http.StatusNotFound, "shipment id required")
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getShipment(w, r, id)
		case http.MethodDelete:
			s.deleteShipment(w, r, id)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}
	if len(parts) != 2 {
		respondError(w, http.StatusNotFound, "unknown shipment resource")
		return
	}
	switch parts[1] {
	case "verify":
		s.verifyShipment(w, r, id)
	case "payments":
		s.recordPayment(w, r, id)
	case "state":
		s.setState(w, r, id)
	case "installments":
		s.installments(w, r, id)
	default:
		respondError(w, http.StatusNotFound, "unknown shipment resource")
	}
}

// getShipment serves staff, or the owner of the record.
func (s *Server) getShipment(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	shipment, err := s.svc.Get(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if principal.Role != model.RoleAdmin && shipment.OwnerEmail != model.NormalizeEmail(principal.Email) {
		respondError(w, http.StatusForbidden, "not your shipment")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"shipment":    shipment,
		"percentPaid": service.PercentPaid(shipment),
	})
}

func (s *Server) deleteShipment(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	if err := s.svc.SoftDelete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	metrics.MutationsTotal.WithLabelValues("soft_delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}

type verifyRequest struct {
	Measurement float64 `json:"measurement"`
}

func (s *Server) verifyShipment(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	shipment, disc, err := s.svc.ConfirmVerification(r.Context(), id, req.Measurement)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	metrics.MutationsTotal.WithLabelValues("verify").Inc()
	payload := map[string]interface{}{"shipment": shipment}
	if disc != nil {
		payload["discrepancy"] = disc
	}
	respondJSON(w, http.StatusOK, payload)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) recordPayment(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	shipment, err := s.svc.RecordPayment(r.Context(), id, req.Amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	metrics.MutationsTotal.WithLabelValues("payment").Inc()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"shipment":    shipment,
		"outstanding": shipment.Outstanding().StringFixed(2),
	})
}

type stateRequest struct {
	State string `json:"state"`
}

func (s *Server) setState(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	shipment, err := s.svc.SetLifecycleState(r.Context(), id, model.LifecycleState(req.State))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	metrics.MutationsTotal.WithLabelValues("state").Inc()
	respondJSON(w, http.StatusOK, map[string]interface{}{"shipment": shipment})
}

// installments serves the read-only tranche breakdown to staff or the owner.
func (s *Server) installments(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	shipment, err := s.svc.Get(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if principal.Role != model.RoleAdmin && shipment.OwnerEmail != model.NormalizeEmail(principal.Email) {
		respondError(w, http.StatusForbidden, "not your shipment")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"plan":         shipment.PaymentPlan,
		"installments": service.InstallmentSchedule(shipment),
	})
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"trash": s.svc.TrashEntries()})
}

// handleTrashRoute serves POST /trash/{id}/restore.
func (s *Server) handleTrashRoute(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/trash/"), "/"), "/")
	if len(parts) != 2 || parts[1] != "restore" || parts[0] == "" {
		respondError(w, http.StatusNotFound, "unknown trash resource")
		return
	}
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	shipment, err := s.svc.Restore(r.Context(), parts[0])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	metrics.MutationsTotal.WithLabelValues("restore").Inc()
	respondJSON(w, http.StatusOK, map[string]interface{}{"shipment": shipment})
}

// handleMyShipments is the customer view: only records owned by the caller.
func (s *Server) handleMyShipments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	term := r.URL.Query().Get("q")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"shipments": s.svc.ListForOwner(principal.Email, term),
	})
}

// trackView is the unauthenticated subset exposed through a signed link.
type trackView struct {
	ID             string               `json:"id"`
	LifecycleState model.LifecycleState `json:"lifecycleState"`
	Verified       bool                 `json:"verified"`
	CreatedAt      time.Time            `json:"createdAt"`
}

// handleTrack resolves a signed public tracking link. No session required; the
// HMAC signature plus expiry stand in for authentication.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	id, expires, sig := q.Get("id"), q.Get("expires"), q.Get("sig")
	if !s.signer.Validate(id, expires, sig) {
		respondError(w, http.StatusForbidden, "invalid tracking link")
		return
	}
	if expiresUnix, err := strconv.ParseInt(expires, 10, 64); err != nil || time.Now().Unix() > expiresUnix {
		respondError(w, http.StatusForbidden, "tracking link expired")
		return
	}
	shipment, err := s.svc.Get(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trackView{
		ID:             shipment.ID,
		LifecycleState: shipment.LifecycleState,
		Verified:       shipment.Verified,
		CreatedAt:      shipment.CreatedAt,
	})
}

// trackingURL builds a signed public link for a shipment.
func (s *Server) trackingURL(id string) string {
	expires := time.Now().Add(s.cfg.TrackLinkTTL).Unix()
	sig := s.signer.Sign(id, expires)
	return fmt.Sprintf("/track?id=%s&expires=%d&sig=%s", url.QueryEscape(id), expires, sig)
}

// handleExport streams the active collection as an xlsx manifest.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireStaff(w, r); !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=shipments-%s.xlsx", time.Now().Format("20060102")))
	if err := export.WriteManifest(w, s.svc.ListAll("")); err != nil {
		s.log.WithError(err).Error("export failed")
	}
}
