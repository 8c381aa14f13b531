package types

const (
	// PollIDSize is the length of a poll identifier in bytes.
	PollIDSize = 16
	// TokenSeedSize is the length of the per-poll token seed revealed at
	// redemption time.
	TokenSeedSize = 32
	// TagSize is the length of a pseudonym tag in bytes.
	TagSize = 32
	// SaltSize is the length of the per-vote leaf salt in bytes.
	SaltSize = 16
	// MaxChoiceCount caps the number of choices a poll may offer.
	MaxChoiceCount = 256
)
