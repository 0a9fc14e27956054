package models

import "time"

const (
	StatusConfirmed = "confirmed"
	StatusRented    = "rented"
)

const (
	CodeSourceChain = "chain"
	CodeSourceLocal = "local"
)

const (
	// DocTypeDrivingLicense is the identity document type code for a driving license.
	DocTypeDrivingLicense = "3"

	// MinimumAge is the age the date-of-birth range proof asserts.
	MinimumAge = 18

	// MicroCCDPerCCD converts a price into the chain's smallest currency unit.
	MicroCCDPerCCD = 1_000_000

	// ChallengeSize is the number of random bytes in a presentation challenge.
	ChallengeSize = 32
)

const (
	// DefaultPollInterval is the delay between transaction status queries.
	DefaultPollInterval = 2 * time.Second

	// DefaultPollAttempts bounds the finality wait to roughly two minutes.
	DefaultPollAttempts = 60

	// DefaultSessionTTL is how long flow sessions and verified accounts are kept.
	DefaultSessionTTL = 30 * time.Minute

	// DefaultContractIndex is the index of the rental contract instance.
	DefaultContractIndex = 12282

	// DefaultContractName is the name the rental contract was initialised with.
	DefaultContractName = "concordiun"

	// DefaultMaxEnergy caps contract execution energy for verify_address.
	DefaultMaxEnergy = 30000

	// BookingIDPrefix prefixes every booking id.
	BookingIDPrefix = "BK"

	// WorkerQueueSize is the event dispatcher queue capacity.
	WorkerQueueSize = 256
)
