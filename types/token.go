package types

import "crypto/sha256"

// Token is the redemption form of an issued voting token: the revealed
// per-poll seed plus the unblinded evaluation output, together with the
// context the evaluation key was derived for. The issuer never sees Seed or
// Output; it only ever evaluated a blinded group element.
type Token struct {
	EpochID uint32   `json:"epochId"`
	PollID  HexBytes `json:"pollId"`
	Tier    Tier     `json:"tier"`
	Scope   Scope    `json:"scope"`
	Seed    HexBytes `json:"seed"`
	Output  HexBytes `json:"output"`
}

// Hash returns the spend-set key of the token. The output element is unique
// per (seed, epoch key), so its hash identifies the token globally.
func (t *Token) Hash() HexBytes {
	hash := sha256.Sum256(t.Output)
	return hash[:]
}
