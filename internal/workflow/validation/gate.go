// Package validation decides whether the data captured for a workflow step is
// admissible. Every function here is pure: no I/O, no clock, no globals that
// change after init.
package validation

import (
	"kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	limits "kycflow/pkg/platform/validation"
	rules "kycflow/pkg/validation"
)

// Result is the outcome of a gate check.
type Result struct {
	IsValid    bool
	Violations []string
}

// Err converts a failed result into a validation error; nil when valid.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return dErrors.NewValidation(r.Violations)
}

func result(violations []string) Result {
	return Result{IsValid: len(violations) == 0, Violations: violations}
}

// Validate checks data against the rule set of step. Steps without rules
// (welcome, processing, result) always pass.
func Validate(step domain.Step, data domain.EvidenceData) Result {
	var v []string
	switch step {
	case domain.StepIDTypeSelection:
		if data.IDType == "" {
			v = append(v, "ID type must be selected")
		}
	case domain.StepIDScanFront:
		v = requireImage(data.Front, "Front image must be captured")
	case domain.StepIDScanBack:
		v = requireImage(data.Back, "Back image must be captured")
	case domain.StepOCRPreview:
		v = ValidateOCR(data.ExtractedFields)
	case domain.StepSelfie:
		v = requireImage(data.Selfie, "Selfie must be captured")
	case domain.StepReview:
		return ValidateFinal(data)
	}
	return result(v)
}

// ValidateFinal aggregates every rule: id type, presence and admissibility of
// all three images, then the OCR fields.
func ValidateFinal(data domain.EvidenceData) Result {
	var v []string
	if data.IDType == "" {
		v = append(v, "ID type is required")
	}
	for _, img := range []struct {
		image   *domain.Image
		missing string
	}{
		{data.Front, "Front image is required"},
		{data.Back, "Back image is required"},
		{data.Selfie, "Selfie is required"},
	} {
		v = append(v, requireImage(img.image, img.missing)...)
	}
	v = append(v, ValidateOCR(data.ExtractedFields)...)
	return result(v)
}

// ValidateFile applies the admissibility rules to a single image.
func ValidateFile(img *domain.Image) []string {
	if img == nil {
		return []string{"File is required"}
	}
	return limits.CheckImage(img.Size(), img.ContentType)
}

func requireImage(img *domain.Image, missing string) []string {
	if img == nil {
		return []string{missing}
	}
	return ValidateFile(img)
}

var ocrMessages = map[string]map[string]string{
	"FullName":         {"notblank": "Full name is required"},
	"DateOfBirth":      {"notblank": "Date of birth is required", "calendardate": "Invalid date of birth format"},
	"DateOfExpiry":     {"notblank": "Expiry date is required", "calendardate": "Invalid expiry date format"},
	"Gender":           {"notblank": "Gender is required"},
	"IDNumber":         {"notblank": "ID number is required"},
	"IssuingAuthority": {"notblank": "Issuing authority is required"},
}

// ValidateOCR checks the required OCR fields. Dates only need to parse as a
// calendar date; no age or expiry semantics are applied here.
func ValidateOCR(fields domain.OCRFields) []string {
	return rules.Check(fields, func(fe rules.FieldError) string {
		return ocrMessages[fe.Field][fe.Tag]
	})
}

// ValidateCredentials checks the caller-supplied API credentials.
func ValidateCredentials(creds domain.Credentials) Result {
	return result(rules.Check(creds, func(fe rules.FieldError) string {
		switch fe.Tag {
		case "required":
			return "API key is required"
		case "min":
			return "API key appears to be invalid (too short)"
		}
		return ""
	}))
}

type configInput struct {
	APIKey  string `validate:"required"`
	BaseURL string `validate:"required,url"`
}

// ValidateConfig checks the settings needed before any remote call can be made.
func ValidateConfig(apiKey, baseURL string) Result {
	return result(rules.Check(configInput{APIKey: apiKey, BaseURL: baseURL}, func(fe rules.FieldError) string {
		switch fe.Field + "/" + fe.Tag {
		case "APIKey/required":
			return "API key is required"
		case "BaseURL/required":
			return "API base URL is required"
		case "BaseURL/url":
			return "API base URL is invalid"
		}
		return ""
	}))
}
