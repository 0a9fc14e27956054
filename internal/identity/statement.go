// Package identity builds credential statements, requests presentations from
// a wallet and turns the revealed attributes into a verification outcome.
package identity

import (
	"time"

	"carma/internal/models"
)

const (
	dateLayout = "20060102"

	// earliestDOB is the lower bound of the date-of-birth range proof.
	earliestDOB = "18000101"
)

// AcceptedIssuers are the identity provider ids a credential may come from.
var AcceptedIssuers = []int{0, 1, 2, 3, 4, 5, 6, 7}

// revealedTags is the order in which attributes are requested.
var revealedTags = []string{
	models.TagNationality,
	models.TagIDDocType,
	models.TagIDDocNumber,
	models.TagIDDocIssuer,
	models.TagIDDocIssuedAt,
	models.TagIDDocExpiresAt,
	models.TagFirstName,
	models.TagLastName,
	models.TagCountryOfResidence,
}

// BuildStatement returns the statement requested from every renter: the
// document attributes in a fixed order followed by an age range proof.
func BuildStatement(now time.Time) models.CredentialStatement {
	statements := make([]models.AtomicStatement, 0, len(revealedTags)+1)
	for _, tag := range revealedTags {
		statements = append(statements, models.AtomicStatement{
			Type:         models.StatementRevealAttribute,
			AttributeTag: tag,
		})
	}
	statements = append(statements, models.AtomicStatement{
		Type:         models.StatementAttributeInRange,
		AttributeTag: models.TagDateOfBirth,
		Lower:        earliestDOB,
		Upper:        AgeThreshold(now),
	})

	issuers := make([]int, len(AcceptedIssuers))
	copy(issuers, AcceptedIssuers)

	return models.CredentialStatement{
		IDQualifier: models.IDQualifier{Type: "cred", Issuers: issuers},
		Statement:   statements,
	}
}

// AgeThreshold is the latest birth date of someone who is of age on now.
func AgeThreshold(now time.Time) string {
	return now.AddDate(-models.MinimumAge, 0, 0).Format(dateLayout)
}
