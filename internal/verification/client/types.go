package client

import (
	"encoding/json"
	"errors"
)

var errMissingHost = errors.New("missing scheme or host")

// Response is the evidence service envelope.
type Response struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
	StatusCode int             `json:"statusCode,omitempty"`
}

// HasData reports whether the envelope carries a non-null payload.
func (r *Response) HasData() bool {
	if r == nil {
		return false
	}
	d := string(r.Data)
	return d != "" && d != "null"
}

// ExtractedFields returns the "extracted_fields" object of a document
// submission response, or nil when absent or not an object.
func (r *Response) ExtractedFields() map[string]json.RawMessage {
	if !r.HasData() {
		return nil
	}
	var payload struct {
		ExtractedFields map[string]json.RawMessage `json:"extracted_fields"`
	}
	if err := json.Unmarshal(r.Data, &payload); err != nil {
		return nil
	}
	return payload.ExtractedFields
}

// SessionCustomData overrides blocks of the session creation payload.
// Nil blocks are replaced with defaults.
type SessionCustomData struct {
	PIIData    map[string]any `json:"piiData,omitempty"`
	VendorData map[string]any `json:"vendorData,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Callback   string         `json:"callback,omitempty"`
}

// CreateSessionRequest is the input to CreateSession.
type CreateSessionRequest struct {
	TenantID   string
	IDType     string
	UserID     string
	Callback   string
	CustomData *SessionCustomData
}

// sessionPayload is the normalized body sent to the session endpoint.
type sessionPayload struct {
	PIIData    map[string]any `json:"piiData"`
	VendorData map[string]any `json:"vendorData"`
	Metadata   map[string]any `json:"metadata"`
	Callback   string         `json:"callback"`
}

// resultsPayload is the subset of the results service response we interpret.
type resultsPayload struct {
	FinalDecision  string          `json:"final_decision"`
	ReviewRequired *bool           `json:"review_required"`
	Message        string          `json:"message"`
	UIData         json.RawMessage `json:"ui_data"`
}
