package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"kycflow/internal/verification/tracer"
	"kycflow/pkg/domain"
)

// Endpoint paths. {id} is replaced with the escaped session id.
const (
	pathHealth        = "/health"
	pathSessionStatus = "/public/verification/{id}/status"
	pathCreateSession = "/tenants/kyc/sessions/api-key"
	pathDocument      = "/public/verification/{id}/document"
	pathFace          = "/public/verification/{id}/face"
	pathResults       = "/public/verification/{id}/results"
	pathIDTypes       = "/tenants/kyc/public/session/{id}/id-types"
	pathFinalResults  = "/api/v1/verification/{id}/results"
)

// Operation names used for logging, metrics and errors.
const (
	OpProbe                = "probe"
	OpGetSession           = "get_session"
	OpCreateSession        = "create_session"
	OpSubmitDocument       = "submit_document"
	OpSubmitFace           = "submit_face"
	OpFetchResult          = "fetch_result"
	OpCompleteVerification = "complete_verification"
	OpListIDTypes          = "list_id_types"
)

// Probe checks whether the evidence service is reachable. It never returns an
// error and is never retried.
func (c *Client) Probe(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, tracer.SpanProbe)
	_, err := c.execute(ctx, request{
		op:      OpProbe,
		method:  http.MethodGet,
		base:    c.baseURL,
		path:    pathHealth,
		noRetry: true,
	}, span)
	span.End(nil)

	up := err == nil
	c.metrics.SetProbe(up)
	if !up {
		c.logger.DebugContext(ctx, "verification backend probe failed", "error", err)
	}
	return up
}

// GetSession loads a session by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (s *domain.Session, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanGetSession, tracer.String(tracer.AttrSession, tracer.HashSessionID(sessionID)))
	defer func() { span.End(err) }()

	body, err := c.execute(ctx, request{
		op:     OpGetSession,
		method: http.MethodGet,
		base:   c.baseURL,
		path:   sessionPath(pathSessionStatus, sessionID),
	}, span)
	if err != nil {
		return nil, err
	}
	return decodeSession(OpGetSession, body)
}

// CreateSession creates a verification session. Missing payload blocks are
// filled with defaults.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (s *domain.Session, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanCreateSession)
	defer func() { span.End(err) }()

	payload, err := json.Marshal(c.sessionPayload(req))
	if err != nil {
		return nil, newAPIError(KindTransport, OpCreateSession, "failed to marshal request", err)
	}

	body, err := c.execute(ctx, request{
		op:          OpCreateSession,
		method:      http.MethodPost,
		base:        c.baseURL,
		path:        pathCreateSession,
		body:        payload,
		contentType: "application/json",
	}, span)
	if err != nil {
		return nil, err
	}
	s, err = decodeSession(OpCreateSession, body)
	if err == nil {
		span.SetAttributes(tracer.String(tracer.AttrSession, tracer.HashSessionID(s.ID)))
	}
	return s, err
}

func (c *Client) sessionPayload(req CreateSessionRequest) sessionPayload {
	custom := req.CustomData
	if custom == nil {
		custom = &SessionCustomData{}
	}

	p := sessionPayload{
		PIIData:    custom.PIIData,
		VendorData: custom.VendorData,
		Metadata:   custom.Metadata,
	}
	if p.PIIData == nil {
		p.PIIData = map[string]any{
			"firstName": "Demo",
			"lastName":  "User",
			"email":     "demo@example.com",
			"phone":     "+1234567890",
		}
	}
	if p.VendorData == nil {
		p.VendorData = map[string]any{
			"vendorId":     "demo-vendor",
			"customFields": map[string]any{},
		}
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{
			"source":    "sdk",
			"userAgent": c.userAgent,
			"ipAddress": "127.0.0.1",
		}
		if req.TenantID != "" {
			p.Metadata["tenantId"] = req.TenantID
		}
		if req.IDType != "" {
			p.Metadata["idType"] = req.IDType
		}
		if req.UserID != "" {
			p.Metadata["userId"] = req.UserID
		}
	}

	p.Callback = firstNonEmpty(req.Callback, custom.Callback, c.callbackURL, DefaultCallbackURL)
	return p
}

// SubmitDocument uploads the document images for OCR. back may be nil.
func (c *Client) SubmitDocument(ctx context.Context, sessionID, idType string, front, back *domain.Image, token string) (resp *Response, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanSubmitDocument, tracer.String(tracer.AttrSession, tracer.HashSessionID(sessionID)))
	defer func() { span.End(err) }()

	if front == nil {
		return nil, newAPIError(KindTransport, OpSubmitDocument, "front image is required", nil)
	}
	form := newForm()
	form.field("document_type", idType)
	form.file("front_image", front)
	if back != nil {
		form.file("back_image", back)
	}
	body, contentType, err := form.close()
	if err != nil {
		return nil, newAPIError(KindTransport, OpSubmitDocument, "failed to build multipart body", err)
	}

	return c.envelope(ctx, span, request{
		op:          OpSubmitDocument,
		method:      http.MethodPost,
		base:        c.baseURL,
		path:        sessionPath(pathDocument, sessionID),
		token:       c.tokenOr(token),
		body:        body,
		contentType: contentType,
	})
}

// SubmitFace uploads a selfie together with the document image to match against.
func (c *Client) SubmitFace(ctx context.Context, sessionID string, selfie, idImage *domain.Image, token string) (resp *Response, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanSubmitFace, tracer.String(tracer.AttrSession, tracer.HashSessionID(sessionID)))
	defer func() { span.End(err) }()

	if selfie == nil || idImage == nil {
		return nil, newAPIError(KindTransport, OpSubmitFace, "selfie and id image are required", nil)
	}
	form := newForm()
	form.file("id_image", idImage)
	form.file("selfie_image", selfie)
	body, contentType, err := form.close()
	if err != nil {
		return nil, newAPIError(KindTransport, OpSubmitFace, "failed to build multipart body", err)
	}

	return c.envelope(ctx, span, request{
		op:          OpSubmitFace,
		method:      http.MethodPost,
		base:        c.baseURL,
		path:        sessionPath(pathFace, sessionID),
		token:       c.tokenOr(token),
		body:        body,
		contentType: contentType,
	})
}

// FetchResult reads the evidence service's own view of the verification.
func (c *Client) FetchResult(ctx context.Context, sessionID, token string) (resp *Response, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanFetchResult, tracer.String(tracer.AttrSession, tracer.HashSessionID(sessionID)))
	defer func() { span.End(err) }()

	return c.envelope(ctx, span, request{
		op:     OpFetchResult,
		method: http.MethodGet,
		base:   c.baseURL,
		path:   sessionPath(pathResults, sessionID),
		token:  c.tokenOr(token),
	})
}

// CompleteVerification retrieves the final decision from the results service
// and maps it onto the four-value status.
func (c *Client) CompleteVerification(ctx context.Context, sessionID string, data domain.EvidenceData, token string) (res *domain.VerificationResult, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanCompleteVerification,
		tracer.String(tracer.AttrSession, tracer.HashSessionID(sessionID)),
		tracer.String("id_type", data.IDType),
	)
	defer func() { span.End(err) }()

	body, err := c.execute(ctx, request{
		op:     OpCompleteVerification,
		method: http.MethodGet,
		base:   c.resultsURL,
		path:   sessionPath(pathFinalResults, sessionID),
		token:  c.tokenOr(token),
	}, span)
	if err != nil {
		return nil, err
	}

	var payload resultsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newAPIError(KindTransport, OpCompleteVerification, "failed to decode results response", err)
	}

	review := payload.ReviewRequired != nil && *payload.ReviewRequired
	span.SetAttributes(tracer.String(tracer.AttrDecision, payload.FinalDecision))
	return &domain.VerificationResult{
		Status:         domain.StatusFromDecision(payload.FinalDecision, review),
		Decision:       payload.FinalDecision,
		ReviewRequired: payload.ReviewRequired,
		Message:        payload.Message,
		UIData:         payload.UIData,
		APIResponse:    json.RawMessage(body),
		Timestamp:      c.now(),
	}, nil
}

// ListIDTypes returns the id types the session's tenant accepts. It never
// fails: without session info, when the probe fails, or when the catalog call
// fails or returns an unusable payload, the fallback catalog is returned.
func (c *Client) ListIDTypes(ctx context.Context, sessionID, token string) []domain.IDType {
	ctx, span := c.tracer.Start(ctx, tracer.SpanListIDTypes, tracer.String(tracer.AttrSession, tracer.HashSessionID(sessionID)))
	defer span.End(nil)

	fallback := func(reason string, err error) []domain.IDType {
		c.metrics.IncFallback(reason)
		span.SetAttributes(tracer.String(tracer.AttrFallback, reason))
		c.logger.DebugContext(ctx, "using fallback id types", "reason", reason, "error", err)
		return FallbackIDTypes()
	}

	token = c.tokenOr(token)
	if sessionID == "" || token == "" {
		return fallback("no_session", nil)
	}
	if !c.Probe(ctx) {
		return fallback("probe_failed", nil)
	}

	resp, err := c.envelope(ctx, span, request{
		op:     OpListIDTypes,
		method: http.MethodGet,
		base:   c.baseURL,
		path:   sessionPath(pathIDTypes, sessionID),
		token:  token,
	})
	if err != nil {
		return fallback("request_failed", err)
	}
	if !resp.Success || !resp.HasData() {
		return fallback("unsuccessful", nil)
	}
	var types []domain.IDType
	if err := json.Unmarshal(resp.Data, &types); err != nil {
		return fallback("malformed", err)
	}
	return types
}

// envelope executes r and decodes the standard response envelope.
func (c *Client) envelope(ctx context.Context, span tracer.Span, r request) (*Response, error) {
	body, err := c.execute(ctx, r, span)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newAPIError(KindTransport, r.op, "failed to decode response", err)
	}
	return &resp, nil
}

func decodeSession(op string, body []byte) (*domain.Session, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newAPIError(KindTransport, op, "failed to decode response", err)
	}
	if !resp.HasData() {
		return nil, newAPIError(KindTransport, op, "response carries no session", nil)
	}
	var s domain.Session
	if err := json.Unmarshal(resp.Data, &s); err != nil {
		return nil, newAPIError(KindTransport, op, "failed to decode session", err)
	}
	if s.ID == "" {
		return nil, newAPIError(KindTransport, op, "response carries no session", nil)
	}
	return &s, nil
}

// tokenOr falls back to the credential session token when token is empty.
func (c *Client) tokenOr(token string) string {
	if token != "" {
		return token
	}
	return c.Credentials().SessionToken
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// form builds a multipart body once so it can be replayed across retries.
type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (f *form) file(name string, img *domain.Image) {
	if f.err != nil {
		return
	}
	filename := img.Name
	if filename == "" {
		filename = name
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = part.Write(img.Data)
}

func (f *form) close() ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return f.buf.Bytes(), f.w.FormDataContentType(), nil
}
