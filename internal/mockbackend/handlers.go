package mockbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kycflow/internal/platform/middleware"
	"kycflow/internal/platform/privacy"
	"kycflow/internal/verification/client"
	"kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/secrets"
)

type createSessionRequest struct {
	PIIData    map[string]any `json:"piiData"`
	VendorData map[string]any `json:"vendorData"`
	Metadata   map[string]any `json:"metadata"`
	Callback   string         `json:"callback"`
}

func (r *createSessionRequest) Normalize() {
	r.Callback = strings.TrimSpace(r.Callback)
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
}

func (r *createSessionRequest) Validate() error {
	if r.PIIData == nil {
		return dErrors.NewValidation([]string{"piiData is required"})
	}
	if decision, ok := r.Metadata["mock_decision"].(string); ok && !knownDecision(decision) {
		return dErrors.NewValidation([]string{"mock_decision must be one of APPROVED, REJECTED, MANUAL_REVIEW, PENDING"})
	}
	return nil
}

type documentResult struct {
	SessionID       string         `json:"session_id"`
	DocumentType    string         `json:"document_type"`
	Status          string         `json:"status"`
	ExtractedFields map[string]any `json:"extracted_fields"`
}

type faceResult struct {
	SessionID  string  `json:"session_id"`
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

type evidenceResult struct {
	SessionID        string `json:"session_id"`
	Status           string `json:"status"`
	DocumentVerified bool   `json:"document_verified"`
	FaceVerified     bool   `json:"face_verified"`
	Device           string `json:"device,omitempty"`
}

type finalResult struct {
	SessionID      string         `json:"session_id"`
	FinalDecision  string         `json:"final_decision"`
	ReviewRequired bool           `json:"review_required"`
	Message        string         `json:"message"`
	UIData         map[string]any `json:"ui_data"`
}

func (b *Backend) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if b.injected(w, OpCreateSession) {
		return
	}
	presented := r.Header.Get("x-api-key")
	if err := b.apiKey.Verify(presented); err != nil {
		b.logger.WarnContext(ctx, "api key rejected",
			"key_fingerprint", secrets.Fingerprint(presented),
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[createSessionRequest](w, r, b.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}

	id := uuid.NewString()
	tenantID := r.Header.Get("X-Tenant-ID")
	token, expiresAt, err := b.tokens.IssueSessionToken(id, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode metadata"))
		return
	}

	rec := &record{
		session: domain.Session{
			ID:        id,
			Token:     token,
			Status:    StatusPending,
			ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
			PIIData:   piiFrom(req.PIIData),
			Metadata:  metadata,
		},
		tenantID:     tenantID,
		metadata:     req.Metadata,
		device:       describeDevice(r.UserAgent()),
		clientPrefix: privacy.AnonymizeIP(middleware.ClientIP(r)),
		createdAt:    b.now(),
	}
	b.mu.Lock()
	b.sessions[id] = rec
	b.mu.Unlock()

	tenantLabel := tenantID
	if tenantLabel == "" {
		tenantLabel = "none"
	}
	b.sessionsCreated.WithLabelValues(tenantLabel).Inc()
	b.logger.InfoContext(ctx, "verification session created",
		"session_id", id,
		"device", rec.device,
		"client_prefix", rec.clientPrefix,
		"request_id", middleware.GetRequestID(ctx),
	)
	httputil.WriteData(w, http.StatusCreated, rec.session)
}

func (b *Backend) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	if b.injected(w, OpSessionStatus) {
		return
	}
	rec, ok := b.lookup(chi.URLParam(r, "id"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "session not found"))
		return
	}
	if rec.session.IsExpired(b.now()) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeSessionError, "session expired"))
		return
	}
	httputil.WriteData(w, http.StatusOK, rec.session)
}

func (b *Backend) handleDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if b.injected(w, OpDocument) {
		return
	}
	id, ok := b.authorizeSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(b.cfg.MaxUploadBytes); err != nil {
		httputil.WriteError(w, uploadError(err))
		return
	}
	documentType := r.FormValue("document_type")
	if !knownDocumentType(documentType) {
		httputil.WriteError(w, dErrors.NewValidation([]string{"unsupported document_type"}))
		return
	}
	front, err := readPart(r.MultipartForm, "front_image")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var (
		extracted map[string]any
		session   *domain.Session
	)
	err = b.submissions.Do(id, func() error {
		current, ok := b.lookup(id)
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		extracted = extractFields(front, documentType, current.session.PIIData, b.now())
		var err error
		session, err = b.update(id, func(rec *record) {
			rec.documentType = documentType
			rec.extracted = extracted
			rec.session.Status = StatusDocumentSubmitted
		})
		return err
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	b.logger.InfoContext(ctx, "document evidence received",
		"session_id", session.ID,
		"document_type", documentType,
		"has_back", r.MultipartForm.File["back_image"] != nil,
		"id_number", privacy.MaskIdentifier(fmt.Sprint(extracted["idNumber"])),
	)
	httputil.WriteData(w, http.StatusOK, documentResult{
		SessionID:       session.ID,
		DocumentType:    documentType,
		Status:          session.Status,
		ExtractedFields: extracted,
	})
}

func (b *Backend) handleFace(w http.ResponseWriter, r *http.Request) {
	if b.injected(w, OpFace) {
		return
	}
	id, ok := b.authorizeSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(b.cfg.MaxUploadBytes); err != nil {
		httputil.WriteError(w, uploadError(err))
		return
	}
	for _, field := range []string{"id_image", "selfie_image"} {
		if _, err := readPart(r.MultipartForm, field); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	match := true
	var session *domain.Session
	err := b.submissions.Do(id, func() error {
		var err error
		session, err = b.update(id, func(rec *record) {
			if v, ok := rec.metadata["mock_face_match"].(bool); ok {
				match = v
			}
			rec.faceMatched = &match
			rec.session.Status = StatusFaceSubmitted
		})
		return err
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	confidence := 0.97
	if !match {
		confidence = 0.12
	}
	httputil.WriteData(w, http.StatusOK, faceResult{
		SessionID:  session.ID,
		Match:      match,
		Confidence: confidence,
		Status:     session.Status,
	})
}

func (b *Backend) handleEvidenceResults(w http.ResponseWriter, r *http.Request) {
	if b.injected(w, OpResults) {
		return
	}
	id, ok := b.authorizeSession(w, r)
	if !ok {
		return
	}
	rec, _ := b.lookup(id)
	httputil.WriteData(w, http.StatusOK, evidenceResult{
		SessionID:        id,
		Status:           rec.session.Status,
		DocumentVerified: rec.extracted != nil,
		FaceVerified:     rec.faceMatched != nil && *rec.faceMatched,
		Device:           rec.device,
	})
}

func (b *Backend) handleIDTypes(w http.ResponseWriter, r *http.Request) {
	if b.injected(w, OpIDTypes) {
		return
	}
	if _, ok := b.authorizeSession(w, r); !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, catalog())
}

func (b *Backend) handleFinalResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if b.injected(w, OpFinalResults) {
		return
	}
	id, ok := b.authorizeSession(w, r)
	if !ok {
		return
	}

	var result finalResult
	_, err := b.update(id, func(rec *record) {
		decision := b.decide(rec)
		rec.session.Decision = decision
		if decision != domain.DecisionPending {
			rec.session.Status = StatusCompleted
		}
		result = finalResult{
			SessionID:      id,
			FinalDecision:  decision,
			ReviewRequired: decision == domain.DecisionManualReview,
			Message:        decisionMessage(decision),
			UIData: map[string]any{
				"status":        rec.session.Status,
				"document_type": rec.documentType,
				"device":        rec.device,
			},
		}
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	b.logger.InfoContext(ctx, "verification decided", "session_id", id, "decision", result.FinalDecision)
	// The results service answers with a bare object rather than the envelope.
	httputil.WriteJSON(w, http.StatusOK, result)
}

// decide returns the metadata override when present, REJECTED after a failed
// face match and the configured default otherwise.
func (b *Backend) decide(rec *record) string {
	if decision, ok := rec.metadata["mock_decision"].(string); ok && knownDecision(decision) {
		return decision
	}
	if rec.faceMatched != nil && !*rec.faceMatched {
		return domain.DecisionRejected
	}
	return b.cfg.DefaultDecision
}

// authorizeSession checks the ?token= query against the session in the path.
func (b *Backend) authorizeSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, ok := b.lookup(id); !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "session not found"))
		return "", false
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session token is required"))
		return "", false
	}
	claims, err := b.tokens.ValidateSessionToken(token)
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	if claims.Subject != id {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token does not grant access to this session"))
		return "", false
	}
	return id, true
}

func (b *Backend) injected(w http.ResponseWriter, op Operation) bool {
	status, ok := b.takeFailure(op)
	if !ok {
		return false
	}
	httputil.WriteJSON(w, status, httputil.Envelope{
		Error:      "injected_failure",
		Message:    http.StatusText(status),
		StatusCode: status,
	})
	return true
}

func readPart(form *multipart.Form, field string) ([]byte, error) {
	if form == nil || len(form.File[field]) == 0 {
		return nil, dErrors.NewValidation([]string{field + " is required"})
	}
	f, err := form.File[field][0].Open()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to open "+field)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read "+field)
	}
	if len(data) == 0 {
		return nil, dErrors.NewValidation([]string{field + " is empty"})
	}
	return data, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dErrors.New(dErrors.CodeBadRequest, "upload too large")
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart body")
}

func piiFrom(raw map[string]any) *domain.PIIData {
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	pii := &domain.PIIData{FirstName: str("firstName"), LastName: str("lastName"), DateOfBirth: str("dateOfBirth")}
	if *pii == (domain.PIIData{}) {
		return nil
	}
	return pii
}

// catalog lists the id types accepted by the mock tenant. It extends the
// client's fallback list so callers can tell the two apart.
func catalog() []domain.IDType {
	return append(client.FallbackIDTypes(), domain.IDType{
		ID:             "kebele_id",
		Name:           "Kebele ID",
		Code:           "kebele_id",
		RequiresFront:  true,
		RequiresBack:   false,
		RequiresSelfie: true,
		Description:    "Kebele Residence ID",
	})
}

func knownDocumentType(code string) bool {
	for _, t := range catalog() {
		if t.Code == code {
			return true
		}
	}
	return false
}

func knownDecision(decision string) bool {
	switch decision {
	case domain.DecisionApproved, domain.DecisionRejected, domain.DecisionManualReview, domain.DecisionPending:
		return true
	}
	return false
}

func decisionMessage(decision string) string {
	switch decision {
	case domain.DecisionApproved:
		return "Identity verified"
	case domain.DecisionRejected:
		return "Identity could not be verified"
	case domain.DecisionManualReview:
		return "Verification requires manual review"
	default:
		return "Verification is still being processed"
	}
}
