package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"carma/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) RequestVerifiablePresentation(
	ctx context.Context,
	account, challenge string,
	statements []models.CredentialStatement,
) (*models.VerifiablePresentation, error) {
	args := m.Called(ctx, account, challenge, statements)
	vp, _ := args.Get(0).(*models.VerifiablePresentation)
	return vp, args.Error(1)
}

func (m *mockWallet) SignAndSendTransaction(ctx context.Context, req models.TransactionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func presentationFor(statement models.CredentialStatement, values map[string]string) *models.VerifiablePresentation {
	entries := make([]models.ProofEntry, 0, len(statement.Statement))
	for _, st := range statement.Statement {
		if st.Type == models.StatementRevealAttribute {
			entries = append(entries, models.ProofEntry{Type: models.StatementRevealAttribute, Attribute: values[st.AttributeTag], Proof: "00"})
			continue
		}
		entries = append(entries, models.ProofEntry{Type: models.StatementAttributeInRange, Proof: "00"})
	}
	return &models.VerifiablePresentation{
		VerifiableCredential: []models.VerifiableCredential{{
			CredentialSubject: models.CredentialSubject{Proof: models.CredentialProof{ProofValue: entries}},
		}},
	}
}

func TestBuildStatement(t *testing.T) {
	now := time.Date(2026, 10, 16, 15, 4, 5, 0, time.UTC)
	st := BuildStatement(now)

	require.Len(t, st.Statement, 10)
	assert.Equal(t, "cred", st.IDQualifier.Type)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, st.IDQualifier.Issuers)

	for i, tag := range revealedTags {
		assert.Equal(t, models.StatementRevealAttribute, st.Statement[i].Type)
		assert.Equal(t, tag, st.Statement[i].AttributeTag)
	}

	last := st.Statement[9]
	assert.Equal(t, models.StatementAttributeInRange, last.Type)
	assert.Equal(t, models.TagDateOfBirth, last.AttributeTag)
	assert.Equal(t, "18000101", last.Lower)
	assert.Equal(t, "20081016", last.Upper)
	assert.Len(t, last.Upper, 8)
}

func TestBuildStatement_IssuersNotShared(t *testing.T) {
	st := BuildStatement(time.Now())
	st.IDQualifier.Issuers[0] = 99
	assert.Equal(t, 0, AcceptedIssuers[0])
}

func TestAgeThreshold_LeapDay(t *testing.T) {
	// 18 years before a leap day normalises to March 1st.
	assert.Equal(t, "20060301", AgeThreshold(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
}

func TestExtractAttributes(t *testing.T) {
	st := BuildStatement(time.Now())
	vp := presentationFor(st, map[string]string{
		models.TagNationality:        "DK",
		models.TagIDDocType:          "3",
		models.TagIDDocNumber:        "X123",
		models.TagIDDocIssuer:        "DK",
		models.TagIDDocIssuedAt:      "20200101",
		models.TagIDDocExpiresAt:     "20300101",
		models.TagFirstName:          "Ada",
		models.TagLastName:           "Lovelace",
		models.TagCountryOfResidence: "DK",
	})

	res := ExtractAttributes(vp, st)
	assert.Empty(t, res.Mismatches)
	assert.Equal(t, models.IdentityAttributes{
		Nationality:        "DK",
		IDDocType:          "3",
		IDDocNumber:        "X123",
		IDDocIssuer:        "DK",
		IDDocIssuedAt:      "20200101",
		IDDocExpiresAt:     "20300101",
		FirstName:          "Ada",
		LastName:           "Lovelace",
		CountryOfResidence: "DK",
		AgeVerified:        true,
	}, res.Attributes)
	assert.Empty(t, res.Attributes.DateOfBirth, "range statement tag must never be populated")
}

func TestExtractAttributes_NoCredential(t *testing.T) {
	res := ExtractAttributes(&models.VerifiablePresentation{}, BuildStatement(time.Now()))
	assert.True(t, res.Attributes.AgeVerified)
	assert.Empty(t, res.Attributes.IDDocType)
}

func TestExtractAttributes_Misaligned(t *testing.T) {
	st := BuildStatement(time.Now())
	entries := make([]models.ProofEntry, 12)
	for i := range entries {
		entries[i] = models.ProofEntry{Type: models.StatementRevealAttribute, Attribute: "v"}
	}
	vp := &models.VerifiablePresentation{
		VerifiableCredential: []models.VerifiableCredential{{
			CredentialSubject: models.CredentialSubject{Proof: models.CredentialProof{ProofValue: entries}},
		}},
	}

	res := ExtractAttributes(vp, st)
	// index 9 is the range statement, 10 and 11 are out of bounds
	assert.Len(t, res.Mismatches, 3)
	assert.Empty(t, res.Attributes.DateOfBirth)
	assert.Equal(t, "v", res.Attributes.CountryOfResidence)
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		attrs models.IdentityAttributes
		want  string
	}{
		{name: "age not verified", attrs: models.IdentityAttributes{IDDocType: "3"}, want: models.OutcomeInvalid},
		{name: "passport", attrs: models.IdentityAttributes{AgeVerified: true, IDDocType: "1", IDDocExpiresAt: "20000101"}, want: models.OutcomeInvalid},
		{name: "expired yesterday", attrs: models.IdentityAttributes{AgeVerified: true, IDDocType: "3", IDDocExpiresAt: "20261015"}, want: models.OutcomeExpired},
		{name: "expires today", attrs: models.IdentityAttributes{AgeVerified: true, IDDocType: "3", IDDocExpiresAt: "20261016"}, want: models.OutcomeSuccess},
		{name: "future expiry", attrs: models.IdentityAttributes{AgeVerified: true, IDDocType: "3", IDDocExpiresAt: "20310101"}, want: models.OutcomeSuccess},
		{name: "no expiry", attrs: models.IdentityAttributes{AgeVerified: true, IDDocType: "3"}, want: models.OutcomeSuccess},
		{name: "unparsable expiry", attrs: models.IdentityAttributes{AgeVerified: true, IDDocType: "3", IDDocExpiresAt: "soon"}, want: models.OutcomeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.attrs, now))
		})
	}
}

func TestRequester_Request(t *testing.T) {
	ctx := context.Background()
	st := BuildStatement(time.Now())

	t.Run("Success", func(t *testing.T) {
		w := new(mockWallet)
		vp := presentationFor(st, nil)
		w.On("RequestVerifiablePresentation", ctx, "acc", mock.MatchedBy(func(ch string) bool {
			return len(ch) == 64
		}), []models.CredentialStatement{st}).Run(func(args mock.Arguments) {
			vp.PresentationContext = args.String(2)
		}).Return(vp, nil).Once()

		got, err := NewRequester(w).Request(ctx, "acc", st)
		require.NoError(t, err)
		assert.Same(t, vp, got)
		w.AssertExpectations(t)
	})

	t.Run("WalletError", func(t *testing.T) {
		w := new(mockWallet)
		rejected := errors.New("user rejected")
		w.On("RequestVerifiablePresentation", ctx, "acc", mock.Anything, mock.Anything).Return(nil, rejected).Once()

		_, err := NewRequester(w).Request(ctx, "acc", st)
		assert.ErrorIs(t, err, rejected)
	})

	t.Run("NilPresentation", func(t *testing.T) {
		w := new(mockWallet)
		w.On("RequestVerifiablePresentation", ctx, "acc", mock.Anything, mock.Anything).Return(nil, nil).Once()

		_, err := NewRequester(w).Request(ctx, "acc", st)
		assert.ErrorIs(t, err, ErrNoPresentation)
	})

	t.Run("ChallengeMismatch", func(t *testing.T) {
		for _, presented := range []string{"", "00ff"} {
			w := new(mockWallet)
			vp := presentationFor(st, nil)
			vp.PresentationContext = presented
			w.On("RequestVerifiablePresentation", ctx, "acc", mock.Anything, mock.Anything).Return(vp, nil).Once()

			got, err := NewRequester(w).Request(ctx, "acc", st)
			assert.ErrorIs(t, err, ErrChallengeMismatch, presented)
			assert.Nil(t, got)
		}
	})

	t.Run("NoAccount", func(t *testing.T) {
		_, err := NewRequester(new(mockWallet)).Request(ctx, "  ", st)
		assert.ErrorIs(t, err, ErrNoWallet)
	})
}

func TestNewChallenge_Unique(t *testing.T) {
	a, err := NewChallenge()
	require.NoError(t, err)
	b, err := NewChallenge()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
