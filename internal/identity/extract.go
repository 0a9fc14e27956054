package identity

import (
	"fmt"

	"carma/internal/models"
)

// Extraction is the result of mapping a presentation back onto its statement.
type Extraction struct {
	Attributes models.IdentityAttributes
	// Mismatches lists proof entries that could not be aligned with a reveal
	// statement. They are skipped.
	Mismatches []string
}

// ExtractAttributes copies revealed values from the first credential into
// named fields. Proof entries align with statements by index.
func ExtractAttributes(vp *models.VerifiablePresentation, statement models.CredentialStatement) Extraction {
	// Receiving a presentation at all means the range proof held.
	res := Extraction{Attributes: models.IdentityAttributes{AgeVerified: true}}
	if vp == nil || len(vp.VerifiableCredential) == 0 {
		return res
	}

	proofs := vp.VerifiableCredential[0].CredentialSubject.Proof.ProofValue
	for i, entry := range proofs {
		if entry.Type != models.StatementRevealAttribute || entry.Attribute == "" {
			continue
		}
		if i >= len(statement.Statement) {
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("proof %d: no statement at this index", i))
			continue
		}
		st := statement.Statement[i]
		if st.Type != models.StatementRevealAttribute {
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("proof %d: statement is %s on %s", i, st.Type, st.AttributeTag))
			continue
		}
		if !setAttribute(&res.Attributes, st.AttributeTag, entry.Attribute) {
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("proof %d: unknown attribute tag %q", i, st.AttributeTag))
		}
	}
	return res
}

func setAttribute(attrs *models.IdentityAttributes, tag, value string) bool {
	switch tag {
	case models.TagNationality:
		attrs.Nationality = value
	case models.TagIDDocType:
		attrs.IDDocType = value
	case models.TagIDDocNumber:
		attrs.IDDocNumber = value
	case models.TagIDDocIssuer:
		attrs.IDDocIssuer = value
	case models.TagIDDocIssuedAt:
		attrs.IDDocIssuedAt = value
	case models.TagIDDocExpiresAt:
		attrs.IDDocExpiresAt = value
	case models.TagFirstName:
		attrs.FirstName = value
	case models.TagLastName:
		attrs.LastName = value
	case models.TagCountryOfResidence:
		attrs.CountryOfResidence = value
	default:
		return false
	}
	return true
}
