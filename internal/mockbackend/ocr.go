package mockbackend

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"kycflow/pkg/domain"
)

var (
	givenNames  = []string{"Abebe", "Almaz", "Dawit", "Hana", "Kebede", "Meron", "Tesfaye", "Selam", "Yonas", "Tigist"}
	familyNames = []string{"Bikila", "Tadesse", "Haile", "Girma", "Alemu", "Bekele", "Wolde", "Mengistu", "Assefa", "Kassa"}
)

// extractFields produces deterministic OCR output for a document image.
// Names from the session's PII data win over generated ones so callers can
// predict what the review step will show.
func extractFields(front []byte, documentType string, pii *domain.PIIData, now time.Time) map[string]any {
	sum := sha256.Sum256(front)
	seed := int(sum[0])<<8 | int(sum[1])

	fullName := fmt.Sprintf("%s %s", givenNames[seed%len(givenNames)], familyNames[(seed/7)%len(familyNames)])
	dateOfBirth := fmt.Sprintf("%04d-%02d-%02d", now.Year()-(21+seed%50), 1+seed%12, 1+seed%28)
	if pii != nil {
		if name := strings.TrimSpace(pii.FirstName + " " + pii.LastName); name != "" {
			fullName = name
		}
		if pii.DateOfBirth != "" {
			dateOfBirth = pii.DateOfBirth
		}
	}

	gender := "M"
	if seed%2 == 1 {
		gender = "F"
	}
	issued := now.AddDate(-(1 + seed%4), 0, 0)
	return map[string]any{
		"fullName":         fullName,
		"dateOfBirth":      dateOfBirth,
		"dateOfIssue":      issued.Format(time.DateOnly),
		"dateOfExpiry":     issued.AddDate(10, 0, 0).Format(time.DateOnly),
		"gender":           gender,
		"sex":              gender,
		"idNumber":         fmt.Sprintf("ET-%06d", seed*37%1000000),
		"issuingAuthority": domain.DefaultIssuingAuthority,
		"documentType":     documentType,
		"documentStatus": map[string]any{
			"is_valid":             true,
			"is_older_than_18":     olderThan18(dateOfBirth, now),
			"is_document_accepted": true,
		},
	}
}

func olderThan18(dateOfBirth string, now time.Time) bool {
	dob, err := time.Parse(time.DateOnly, dateOfBirth)
	if err != nil {
		return false
	}
	return !dob.AddDate(18, 0, 0).After(now)
}
