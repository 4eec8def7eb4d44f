package service

import (
	"github.com/sagereplay/sagereplay/internal/protocol"
)

// CharacterCore holds the character_data block.
type CharacterCore struct {
	ID        int64  `json:"character_id"`
	Name      string `json:"name"`
	Level     int64  `json:"level"`
	XP        int64  `json:"xp"`
	Gender    int64  `json:"gender"`
	Rank      int64  `json:"rank"`
	Merit     int64  `json:"merit"`
	Prestige  int64  `json:"prestige"`
	Element1  int64  `json:"element_1"`
	Element2  *int64 `json:"element_2,omitempty"`
	Element3  *int64 `json:"element_3,omitempty"`
	Talent1   any    `json:"talent_1,omitempty"`
	Talent2   any    `json:"talent_2,omitempty"`
	Talent3   any    `json:"talent_3,omitempty"`
	Gold      int64  `json:"gold"`
	TP        int64  `json:"tp"`
	SS        int64  `json:"ss"`
	Class     any    `json:"class,omitempty"`
	Senjutsu  any    `json:"senjutsu,omitempty"`
	PvPPoints int64  `json:"pvp_points"`
}

// CharacterPoints are attribute points. The server spells the keys
// "atrrib_*".
type CharacterPoints struct {
	Wind      int64 `json:"attrib_wind"`
	Fire      int64 `json:"attrib_fire"`
	Lightning int64 `json:"attrib_lightning"`
	Water     int64 `json:"attrib_water"`
	Earth     int64 `json:"attrib_earth"`
	Free      int64 `json:"attrib_free"`
}

// CharacterSlots are equipment slot counts.
type CharacterSlots struct {
	Weapons     int64 `json:"weapons"`
	BackItems   int64 `json:"back_items"`
	Accessories int64 `json:"accessories"`
	Hairstyles  int64 `json:"hairstyles"`
	Clothing    int64 `json:"clothing"`
}

// CharacterSets are the equipped item identifiers.
type CharacterSets struct {
	Weapon         string `json:"weapon,omitempty"`
	BackItem       string `json:"back_item,omitempty"`
	Accessory      string `json:"accessory,omitempty"`
	Hairstyle      string `json:"hairstyle,omitempty"`
	Clothing       string `json:"clothing,omitempty"`
	Skills         string `json:"skills,omitempty"`
	SenjutsuSkills any    `json:"senjutsu_skills,omitempty"`
	HairColor      string `json:"hair_color,omitempty"`
	SkinColor      string `json:"skin_color,omitempty"`
	Face           string `json:"face,omitempty"`
}

// CharacterInventory holds the comma separated identifier lists.
type CharacterInventory struct {
	Weapons        string `json:"weapons,omitempty"`
	BackItems      string `json:"back_items,omitempty"`
	Accessories    string `json:"accessories,omitempty"`
	Sets           string `json:"sets,omitempty"`
	Hairs          string `json:"hairs,omitempty"`
	Skills         string `json:"skills,omitempty"`
	TalentSkills   string `json:"talent_skills,omitempty"`
	SenjutsuSkills string `json:"senjutsu_skills,omitempty"`
	Materials      string `json:"materials,omitempty"`
	Essentials     string `json:"essentials,omitempty"`
	Consumables    string `json:"consumables,omitempty"`
	Animations     string `json:"animations,omitempty"`
}

// ClanInfo identifies the character's clan, if any.
type ClanInfo struct {
	ID     *int64 `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Banner string `json:"banner,omitempty"`
}

// CharacterData is the SystemLogin.getCharacterData reply.
type CharacterData struct {
	Status         int64              `json:"status"`
	Error          int64              `json:"error"`
	Announcements  string             `json:"announcements,omitempty"`
	AccountType    int64              `json:"account_type"`
	EmblemDuration int64              `json:"emblem_duration"`
	HasUnreadMails bool               `json:"has_unread_mails"`
	Features       []any              `json:"features"`
	Events         any                `json:"events,omitempty"`
	Character      CharacterCore      `json:"character"`
	Points         CharacterPoints    `json:"points"`
	Slots          CharacterSlots     `json:"slots"`
	Sets           CharacterSets      `json:"sets"`
	Inventory      CharacterInventory `json:"inventory"`
	Recruiters     []any              `json:"recruiters"`
	RecruitData    []any              `json:"recruit_data"`
	PetData        any                `json:"pet_data,omitempty"`
	Clan           ClanInfo           `json:"clan"`
	Raw            map[string]any     `json:"raw,omitempty"`
}

// ParseCharacterData reads a normalized getCharacterData body. Every block
// is optional and defaults to zero values.
func ParseCharacterData(o *protocol.Object) CharacterData {
	return CharacterData{
		Status:         intOr(o, 0, "status"),
		Error:          intOr(o, 0, "error"),
		Announcements:  str(o, "announcements"),
		AccountType:    intOr(o, 0, "account_type"),
		EmblemDuration: intOr(o, 0, "emblem_duration"),
		HasUnreadMails: boolOr(o, false, "has_unread_mails"),
		Features:       items(o, "features"),
		Events:         raw(o, "events"),
		Character:      parseCore(subObject(o, "character_data")),
		Points:         parsePoints(subObject(o, "character_points")),
		Slots:          parseSlots(subObject(o, "character_slots")),
		Sets:           parseSets(subObject(o, "character_sets")),
		Inventory:      parseInventory(subObject(o, "character_inventory")),
		Recruiters:     items(o, "recruiters"),
		RecruitData:    items(o, "recruit_data"),
		PetData:        raw(o, "pet_data"),
		Clan:           parseClan(subObject(o, "clan")),
		Raw:            fieldMap(o),
	}
}

func parseCore(o *protocol.Object) CharacterCore {
	return CharacterCore{
		ID:        intOr(o, 0, "character_id"),
		Name:      str(o, "character_name"),
		Level:     intOr(o, 0, "character_level"),
		XP:        intOr(o, 0, "character_xp"),
		Gender:    intOr(o, 0, "character_gender"),
		Rank:      intOr(o, 0, "character_rank"),
		Merit:     intOr(o, 0, "character_merit"),
		Prestige:  intOr(o, 0, "character_prestige"),
		Element1:  intOr(o, 0, "character_element_1"),
		Element2:  optInt(o, "character_element_2"),
		Element3:  optInt(o, "character_element_3"),
		Talent1:   raw(o, "character_talent_1"),
		Talent2:   raw(o, "character_talent_2"),
		Talent3:   raw(o, "character_talent_3"),
		Gold:      intOr(o, 0, "character_gold"),
		TP:        intOr(o, 0, "character_tp"),
		SS:        intOr(o, 0, "character_ss"),
		Class:     raw(o, "character_class"),
		Senjutsu:  raw(o, "character_senjutsu"),
		PvPPoints: intOr(o, 0, "character_pvp_points"),
	}
}

func parsePoints(o *protocol.Object) CharacterPoints {
	return CharacterPoints{
		Wind:      intOr(o, 0, "atrrib_wind"),
		Fire:      intOr(o, 0, "atrrib_fire"),
		Lightning: intOr(o, 0, "atrrib_lightning"),
		Water:     intOr(o, 0, "atrrib_water"),
		Earth:     intOr(o, 0, "atrrib_earth"),
		Free:      intOr(o, 0, "atrrib_free"),
	}
}

func parseSlots(o *protocol.Object) CharacterSlots {
	return CharacterSlots{
		Weapons:     intOr(o, 0, "weapons"),
		BackItems:   intOr(o, 0, "back_items"),
		Accessories: intOr(o, 0, "accessories"),
		Hairstyles:  intOr(o, 0, "hairstyles"),
		Clothing:    intOr(o, 0, "clothing"),
	}
}

func parseSets(o *protocol.Object) CharacterSets {
	return CharacterSets{
		Weapon:         str(o, "weapon"),
		BackItem:       str(o, "back_item"),
		Accessory:      str(o, "accessory"),
		Hairstyle:      str(o, "hairstyle"),
		Clothing:       str(o, "clothing"),
		Skills:         str(o, "skills"),
		SenjutsuSkills: raw(o, "senjutsu_skills"),
		HairColor:      str(o, "hair_color"),
		SkinColor:      str(o, "skin_color"),
		Face:           str(o, "face"),
	}
}

func parseInventory(o *protocol.Object) CharacterInventory {
	return CharacterInventory{
		Weapons:        str(o, "char_weapons"),
		BackItems:      str(o, "char_back_items"),
		Accessories:    str(o, "char_accessories"),
		Sets:           str(o, "char_sets"),
		Hairs:          str(o, "char_hairs"),
		Skills:         str(o, "char_skills"),
		TalentSkills:   str(o, "char_talent_skills"),
		SenjutsuSkills: str(o, "char_senjutsu_skills"),
		Materials:      str(o, "char_materials"),
		Essentials:     str(o, "char_essentials"),
		Consumables:    str(o, "char_items"),
		Animations:     str(o, "char_animations"),
	}
}

func parseClan(o *protocol.Object) ClanInfo {
	return ClanInfo{
		ID:     optInt(o, "id"),
		Name:   str(o, "name"),
		Banner: str(o, "banner"),
	}
}
