package service

import (
	"fmt"

	"github.com/sagereplay/sagereplay/internal/protocol"
)

// Candidate keys per summary field. The server has used two naming schemes;
// the first present key wins.
var (
	keysCharID   = []string{"char_id", "character_id", "cid"}
	keysAccID    = []string{"acc_id", "account_id"}
	keysName     = []string{"character_name", "name"}
	keysLevel    = []string{"character_level", "level"}
	keysXP       = []string{"character_xp", "xp"}
	keysGender   = []string{"character_gender", "gender"}
	keysRank     = []string{"character_rank", "rank"}
	keysPrestige = []string{"character_prestige", "prestige"}
)

// CharacterSummary is one entry of the account's character list.
type CharacterSummary struct {
	CharID   int64          `json:"char_id"`
	AccID    int64          `json:"acc_id"`
	Name     string         `json:"name"`
	Level    int64          `json:"level"`
	XP       int64          `json:"xp"`
	Gender   int64          `json:"gender"`
	Rank     int64          `json:"rank"`
	Prestige int64          `json:"prestige"`
	Element1 *int64         `json:"element_1,omitempty"`
	Element2 *int64         `json:"element_2,omitempty"`
	Element3 *int64         `json:"element_3,omitempty"`
	Talent1  any            `json:"talent_1,omitempty"`
	Talent2  any            `json:"talent_2,omitempty"`
	Talent3  any            `json:"talent_3,omitempty"`
	Gold     int64          `json:"gold"`
	TP       int64          `json:"tp"`
	Raw      map[string]any `json:"raw,omitempty"`

	hasID bool
}

// HasID reports whether the server sent a character id for this entry.
func (c CharacterSummary) HasID() bool {
	return c.hasID
}

// ParseCharacterSummary reads one account_data entry. The character id is
// required.
func ParseCharacterSummary(o *protocol.Object) (CharacterSummary, error) {
	summary := parseSummary(o)
	if !summary.hasID {
		return CharacterSummary{}, errMissingCharID()
	}
	return summary, nil
}

func errMissingCharID() error {
	return &MalformedResponseShapeError{Target: TargetGetAllCharacters, Field: "char_id"}
}

func parseSummary(o *protocol.Object) CharacterSummary {
	id, ok := protocol.IntField(o, keysCharID...)
	return CharacterSummary{
		CharID:   id,
		hasID:    ok,
		AccID:    intOr(o, 0, keysAccID...),
		Name:     str(o, keysName...),
		Level:    intOr(o, 0, keysLevel...),
		XP:       intOr(o, 0, keysXP...),
		Gender:   intOr(o, 0, keysGender...),
		Rank:     intOr(o, 0, keysRank...),
		Prestige: intOr(o, 0, keysPrestige...),
		Element1: optInt(o, "character_element_1"),
		Element2: optInt(o, "character_element_2"),
		Element3: optInt(o, "character_element_3"),
		Talent1:  raw(o, "character_talent_1"),
		Talent2:  raw(o, "character_talent_2"),
		Talent3:  raw(o, "character_talent_3"),
		Gold:     intOr(o, 0, "character_gold"),
		TP:       intOr(o, 0, "character_tp"),
		Raw:      fieldMap(o),
	}
}

// CharacterList is the SystemLogin.getAllCharacters reply.
type CharacterList struct {
	Status          int64              `json:"status"`
	Error           int64              `json:"error"`
	AccountType     int64              `json:"account_type"`
	EmblemDuration  int64              `json:"emblem_duration"`
	Tokens          int64              `json:"tokens"`
	TotalCharacters int64              `json:"total_characters"`
	Characters      []CharacterSummary `json:"characters"`
}

// ParseCharacterList reads a normalized getAllCharacters body. Entries that
// are not mappings are skipped. Entries without a character id are kept in
// place so indexes match the server's list; SelectedID rejects them.
func ParseCharacterList(o *protocol.Object) (CharacterList, error) {
	list := CharacterList{
		Status:         intOr(o, 0, "status"),
		Error:          intOr(o, 0, "error"),
		AccountType:    intOr(o, 0, "account_type"),
		EmblemDuration: intOr(o, 0, "emblem_duration"),
		Tokens:         intOr(o, 0, "tokens"),
		Characters:     []CharacterSummary{},
	}

	if l, ok := protocol.ListField(o, "account_data"); ok {
		for _, item := range l.Items {
			entry, ok := item.(*protocol.Object)
			if !ok || entry == nil {
				continue
			}
			list.Characters = append(list.Characters, parseSummary(entry))
		}
	}

	list.TotalCharacters = intOr(o, int64(len(list.Characters)), "total_characters")
	return list, nil
}

// Select clamps index into the valid range and returns that character.
// ok is false when the list is empty.
func (l CharacterList) Select(index int) (CharacterSummary, int, bool) {
	n := len(l.Characters)
	if n == 0 {
		return CharacterSummary{}, 0, false
	}
	if index < 0 {
		index = 0
	}
	if index > n-1 {
		index = n - 1
	}
	return l.Characters[index], index, true
}

// SelectedID returns the id of the character at the clamped index. It fails
// when that entry arrived without an id.
func (l CharacterList) SelectedID(index int) (int64, int, error) {
	c, idx, ok := l.Select(index)
	if !ok {
		return 0, 0, fmt.Errorf("no characters to select")
	}
	if !c.hasID {
		return 0, idx, fmt.Errorf("account_data[%d]: %w", idx, errMissingCharID())
	}
	return c.CharID, idx, nil
}
