package domain

import (
	"net/http"
	"strings"
)

// Default OCR values seeded into a fresh workflow.
const (
	DefaultDateOfExpiry     = "2025-12-31"
	DefaultIssuingAuthority = "Government of Ethiopia"
)

// Image is a captured evidence blob. Data is persisted base64-encoded.
type Image struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// NewImage builds an Image, sniffing the content type from the payload.
func NewImage(name string, data []byte) *Image {
	ct := http.DetectContentType(data)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return &Image{Name: name, ContentType: ct, Data: data}
}

// Size is the payload length in bytes.
func (i *Image) Size() int64 {
	if i == nil {
		return 0
	}
	return int64(len(i.Data))
}

// Clone returns an independent copy of the image.
func (i *Image) Clone() *Image {
	if i == nil {
		return nil
	}
	data := make([]byte, len(i.Data))
	copy(data, i.Data)
	return &Image{Name: i.Name, ContentType: i.ContentType, Data: data}
}

// DocumentStatus is the backend's document assessment echoed in OCR results.
type DocumentStatus struct {
	IsValid            bool `json:"is_valid"`
	IsOlderThan18      bool `json:"is_older_than_18"`
	IsDocumentAccepted bool `json:"is_document_accepted"`
}

// OCRFields is the structured data read from an identity document.
// The first six fields are required by the ocrPreview and review steps.
type OCRFields struct {
	FullName         string `json:"fullName" validate:"notblank"`
	DateOfBirth      string `json:"dateOfBirth" validate:"notblank,calendardate"`
	DateOfExpiry     string `json:"dateOfExpiry" validate:"notblank,calendardate"`
	Gender           string `json:"gender" validate:"notblank"`
	IDNumber         string `json:"idNumber" validate:"notblank"`
	IssuingAuthority string `json:"issuingAuthority" validate:"notblank"`

	// Local-script name and local-calendar dates as printed on the document.
	FullNameLocal     string          `json:"fullNameAmharic,omitempty"`
	DateOfBirthLocal  string          `json:"dateOfBirthEthiopian,omitempty"`
	DateOfIssue       string          `json:"dateOfIssue,omitempty"`
	DateOfIssueLocal  string          `json:"dateOfIssueEthiopian,omitempty"`
	DateOfExpiryLocal string          `json:"dateOfExpiryEthiopian,omitempty"`
	DocumentType      string          `json:"documentType,omitempty"`
	Sex               string          `json:"sex,omitempty"`
	DocumentStatus    *DocumentStatus `json:"documentStatus,omitempty"`
}

// DefaultOCRFields returns the OCR values a new workflow starts with.
func DefaultOCRFields() OCRFields {
	return OCRFields{
		DateOfExpiry:     DefaultDateOfExpiry,
		IssuingAuthority: DefaultIssuingAuthority,
	}
}

// Clone returns an independent copy.
func (f OCRFields) Clone() OCRFields {
	out := f
	if f.DocumentStatus != nil {
		ds := *f.DocumentStatus
		out.DocumentStatus = &ds
	}
	return out
}

// EvidenceData is everything the user has captured so far.
type EvidenceData struct {
	IDType          string    `json:"idType"`
	Front           *Image    `json:"idFront"`
	Back            *Image    `json:"idBack"`
	Selfie          *Image    `json:"selfie"`
	ExtractedFields OCRFields `json:"ocrData"`
}

// NewEvidenceData returns empty evidence with default OCR fields.
func NewEvidenceData() EvidenceData {
	return EvidenceData{ExtractedFields: DefaultOCRFields()}
}

// Clone returns a deep copy.
func (d EvidenceData) Clone() EvidenceData {
	return EvidenceData{
		IDType:          d.IDType,
		Front:           d.Front.Clone(),
		Back:            d.Back.Clone(),
		Selfie:          d.Selfie.Clone(),
		ExtractedFields: d.ExtractedFields.Clone(),
	}
}

// EvidenceUpdate is a partial update. Nil fields are left untouched; a non-nil
// ExtractedFields replaces the whole OCR object rather than merging into it.
// Clear* flags drop an image that was previously captured.
type EvidenceUpdate struct {
	IDType          *string
	Front           *Image
	Back            *Image
	Selfie          *Image
	ExtractedFields *OCRFields

	ClearFront  bool
	ClearBack   bool
	ClearSelfie bool
}

// Apply merges the update into d at the top level only.
func (u EvidenceUpdate) Apply(d EvidenceData) EvidenceData {
	out := d
	if u.IDType != nil {
		out.IDType = *u.IDType
	}
	if u.Front != nil {
		out.Front = u.Front.Clone()
	} else if u.ClearFront {
		out.Front = nil
	}
	if u.Back != nil {
		out.Back = u.Back.Clone()
	} else if u.ClearBack {
		out.Back = nil
	}
	if u.Selfie != nil {
		out.Selfie = u.Selfie.Clone()
	} else if u.ClearSelfie {
		out.Selfie = nil
	}
	if u.ExtractedFields != nil {
		out.ExtractedFields = u.ExtractedFields.Clone()
	}
	return out
}
