package identity

import (
	"time"

	"carma/internal/models"
)

// Evaluate classifies attributes as success, invalid or expired. Checks run
// in order: age, document type, document expiry.
func Evaluate(attrs models.IdentityAttributes, now time.Time) string {
	if !attrs.AgeVerified {
		return models.OutcomeInvalid
	}
	if attrs.IDDocType != models.DocTypeDrivingLicense {
		return models.OutcomeInvalid
	}
	if attrs.IDDocExpiresAt != "" {
		expiry, err := time.ParseInLocation(dateLayout, attrs.IDDocExpiresAt, now.Location())
		if err != nil {
			return models.OutcomeInvalid
		}
		y, m, d := now.Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		if expiry.Before(today) {
			return models.OutcomeExpired
		}
	}
	return models.OutcomeSuccess
}
