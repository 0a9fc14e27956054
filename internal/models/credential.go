package models

const (
	StatementRevealAttribute  = "RevealAttribute"
	StatementAttributeInRange = "AttributeInRange"
)

// Attribute tags understood by identity providers.
const (
	TagFirstName          = "firstName"
	TagLastName           = "lastName"
	TagSex                = "sex"
	TagDateOfBirth        = "dob"
	TagCountryOfResidence = "countryOfResidence"
	TagNationality        = "nationality"
	TagIDDocType          = "idDocType"
	TagIDDocNumber        = "idDocNo"
	TagIDDocIssuer        = "idDocIssuer"
	TagIDDocIssuedAt      = "idDocIssuedAt"
	TagIDDocExpiresAt     = "idDocExpiresAt"
	TagNationalIDNumber   = "nationalIdNo"
	TagTaxIDNumber        = "taxIdNo"
)

// AtomicStatement is a single disclosure or range claim requested from a wallet.
type AtomicStatement struct {
	Type         string `json:"type"`
	AttributeTag string `json:"attributeTag"`
	Lower        string `json:"lower,omitempty"`
	Upper        string `json:"upper,omitempty"`
}

type IDQualifier struct {
	Type    string `json:"type"`
	Issuers []int  `json:"issuers"`
}

type CredentialStatement struct {
	IDQualifier IDQualifier       `json:"idQualifier"`
	Statement   []AtomicStatement `json:"statement"`
}

// ProofEntry mirrors the statement at the same index. Reveal proofs carry the
// plaintext attribute; range proofs carry none.
type ProofEntry struct {
	Type      string `json:"type"`
	Attribute string `json:"attribute,omitempty"`
	Proof     string `json:"proof,omitempty"`
}

type CredentialProof struct {
	Created    string       `json:"created,omitempty"`
	Type       string       `json:"type,omitempty"`
	ProofValue []ProofEntry `json:"proofValue"`
}

type CredentialSubject struct {
	ID    string          `json:"id,omitempty"`
	Proof CredentialProof `json:"proof"`
}

type VerifiableCredential struct {
	Type              []string          `json:"type,omitempty"`
	Issuer            string            `json:"issuer,omitempty"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
}

type VerifiablePresentation struct {
	PresentationContext  string                 `json:"presentationContext,omitempty"`
	VerifiableCredential []VerifiableCredential `json:"verifiableCredential"`
}

// IdentityAttributes holds the attributes a presentation revealed.
type IdentityAttributes struct {
	Nationality        string `json:"nationality,omitempty"`
	IDDocType          string `json:"idDocType,omitempty"`
	IDDocNumber        string `json:"idDocNumber,omitempty"`
	IDDocIssuer        string `json:"idDocIssuer,omitempty"`
	IDDocIssuedAt      string `json:"idDocIssuedAt,omitempty"`
	IDDocExpiresAt     string `json:"idDocExpiresAt,omitempty"`
	FirstName          string `json:"firstName,omitempty"`
	LastName           string `json:"lastName,omitempty"`
	DateOfBirth        string `json:"dateOfBirth,omitempty"`
	CountryOfResidence string `json:"countryOfResidence,omitempty"`
	AgeVerified        bool   `json:"ageVerified"`
}
