package client

import "kycflow/pkg/domain"

// FallbackIDTypes is the built-in catalog served whenever the backend cannot
// provide one. Order is fixed.
func FallbackIDTypes() []domain.IDType {
	return []domain.IDType{
		{
			ID:             "national_id",
			Name:           "National ID",
			Code:           "national_id",
			RequiresFront:  true,
			RequiresBack:   true,
			RequiresSelfie: true,
			Description:    "Ethiopian National ID Card",
		},
		{
			ID:             "passport",
			Name:           "Passport",
			Code:           "passport",
			RequiresFront:  true,
			RequiresBack:   false,
			RequiresSelfie: true,
			Description:    "International Passport",
		},
		{
			ID:             "driver_license",
			Name:           "Driver License",
			Code:           "driver_license",
			RequiresFront:  true,
			RequiresBack:   true,
			RequiresSelfie: true,
			Description:    "Driver License",
		},
	}
}
