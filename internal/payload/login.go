package payload

import (
	"context"
	"fmt"
)

// Loader byte counters reported by the stock client.
const (
	DefaultBytesLoaded int32 = 8216461
	DefaultBytesTotal  int32 = 8216461
)

// LoaderInfo mimics the resource loader progress counters.
type LoaderInfo struct {
	BytesLoaded int32 `json:"bytes_loaded" yaml:"bytes_loaded"`
	BytesTotal  int32 `json:"bytes_total" yaml:"bytes_total"`
}

// DefaultLoaderInfo returns the stock client counters.
func DefaultLoaderInfo() LoaderInfo {
	return LoaderInfo{BytesLoaded: DefaultBytesLoaded, BytesTotal: DefaultBytesTotal}
}

// SessionParameters are the seed and key the server hands out on version
// check. HasSeed distinguishes a zero seed from an absent one.
type SessionParameters struct {
	Seed    int64
	HasSeed bool
	Key     string
}

// Validate reports which parameters are absent.
func (p SessionParameters) Validate() error {
	if p.HasSeed && p.Key != "" {
		return nil
	}
	return &MissingSessionParametersError{Seed: !p.HasSeed, Key: p.Key == ""}
}

// LoginPayload is the argument tuple for SystemLogin.loginUser.
type LoginPayload struct {
	Username          string
	EncryptedPassword string
	CharacterSeed     int32
	BytesLoaded       int32
	BytesTotal        int32
	CharacterKey      string
	SpecificItem      string
	RandomSeed        string
	PasswordLength    int
}

// Fields returns the nine login fields in wire order. The seed travels as a
// Number, counters and password length as integers.
func (p *LoginPayload) Fields() []any {
	return []any{
		p.Username,
		p.EncryptedPassword,
		float64(p.CharacterSeed),
		int(p.BytesLoaded),
		int(p.BytesTotal),
		p.CharacterKey,
		p.SpecificItem,
		p.RandomSeed,
		p.PasswordLength,
	}
}

// Assemble derives a LoginPayload from already-fetched item levels.
func Assemble(username, password string, params SessionParameters, loader LoaderInfo, levels map[string]int, e Entropy) (*LoginPayload, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	seed := int32(params.Seed)

	encrypted, err := EncryptPassword(password, params.Key, seed)
	if err != nil {
		return nil, fmt.Errorf("encrypting password: %w", err)
	}

	return &LoginPayload{
		Username:          username,
		EncryptedPassword: encrypted,
		CharacterSeed:     seed,
		BytesLoaded:       loader.BytesLoaded,
		BytesTotal:        loader.BytesTotal,
		CharacterKey:      params.Key,
		SpecificItem:      SpecificItem(loader, seed, levels),
		RandomSeed:        RandomSeed(seed, loader, e),
		PasswordLength:    len(passwordBytes(password)),
	}, nil
}

// LevelSource provides the item-level table for a library URL.
type LevelSource interface {
	ItemLevels(ctx context.Context, url string) (map[string]int, error)
}

// Synthesizer builds login payloads, fetching the item-level table through
// its LevelSource.
type Synthesizer struct {
	levels     LevelSource
	libraryURL string
	entropy    Entropy
}

// NewSynthesizer creates a Synthesizer reading levels from libraryURL.
func NewSynthesizer(levels LevelSource, libraryURL string) *Synthesizer {
	return &Synthesizer{
		levels:     levels,
		libraryURL: libraryURL,
		entropy:    DefaultEntropy(),
	}
}

// WithEntropy replaces the zero-seed fallback source.
func (s *Synthesizer) WithEntropy(e Entropy) *Synthesizer {
	s.entropy = e
	return s
}

// Build validates params before any network access, then fetches the
// item-level table and assembles the payload.
func (s *Synthesizer) Build(ctx context.Context, username, password string, params SessionParameters, loader LoaderInfo) (*LoginPayload, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	levels, err := s.levels.ItemLevels(ctx, s.libraryURL)
	if err != nil {
		return nil, fmt.Errorf("loading item levels: %w", err)
	}
	return Assemble(username, password, params, loader, levels, s.entropy)
}
