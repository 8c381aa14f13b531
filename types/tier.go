package types

import (
	"encoding/json"
	"fmt"
)

// Tier is the identity assurance level of a registered user. Higher tiers
// imply stronger verification and unlock higher-stakes voting scopes.
type Tier uint8

const (
	// TierT0 means basic human presence verification.
	TierT0 Tier = iota
	// TierT1 means device-bound verification (WebAuthn or equivalent).
	TierT1
	// TierT2 means personhood verification.
	TierT2
	// TierT3 means government-verified citizenship.
	TierT3
)

// TierFromString parses the "T0".."T3" form.
func TierFromString(s string) (Tier, error) {
	switch s {
	case "T0":
		return TierT0, nil
	case "T1":
		return TierT1, nil
	case "T2":
		return TierT2, nil
	case "T3":
		return TierT3, nil
	}
	return 0, fmt.Errorf("unknown verification tier %q", s)
}

func (t Tier) String() string {
	switch t {
	case TierT0:
		return "T0"
	case TierT1:
		return "T1"
	case TierT2:
		return "T2"
	case TierT3:
		return "T3"
	}
	return fmt.Sprintf("T?(%d)", uint8(t))
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t <= TierT3
}

// Weight returns the tally weight assigned to votes cast under this tier.
func (t Tier) Weight() float64 {
	switch t {
	case TierT1:
		return 2
	case TierT2:
		return 5
	case TierT3:
		return 10
	}
	return 1
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	tier, err := TierFromString(s)
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// Scope classifies polls by the assurance level they demand from voters.
type Scope string

const (
	// ScopeCasual polls accept any verified human (T0 and up).
	ScopeCasual Scope = "casual"
	// ScopeCommunity polls require device-bound verification (T1 and up).
	ScopeCommunity Scope = "community"
	// ScopeOfficial polls require personhood verification (T2 and up).
	ScopeOfficial Scope = "official"
)

// MinTier returns the lowest tier allowed to obtain tokens for the scope.
func (s Scope) MinTier() (Tier, error) {
	switch s {
	case ScopeCasual:
		return TierT0, nil
	case ScopeCommunity:
		return TierT1, nil
	case ScopeOfficial:
		return TierT2, nil
	}
	return 0, fmt.Errorf("unknown scope %q", s)
}

// Valid reports whether s is one of the defined scopes.
func (s Scope) Valid() bool {
	_, err := s.MinTier()
	return err == nil
}
