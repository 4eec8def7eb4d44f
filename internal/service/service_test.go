package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagereplay/sagereplay/internal/payload"
	"github.com/sagereplay/sagereplay/internal/protocol"
)

type recordedCall struct {
	target string
	args   []any
}

type fakeCaller struct {
	replies map[string]protocol.Value
	err     error
	calls   []recordedCall
}

func (f *fakeCaller) Invoke(_ context.Context, target string, args []any) (protocol.Value, error) {
	f.calls = append(f.calls, recordedCall{target: target, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return f.replies[target], nil
}

func obj(kv ...any) *protocol.Object {
	o := protocol.NewObject()
	for i := 0; i < len(kv); i += 2 {
		v, err := protocol.FromGo(kv[i+1])
		if err != nil {
			panic(err)
		}
		o.Set(kv[i].(string), v)
	}
	return o
}

func TestRequestArgShapes(t *testing.T) {
	assert.Equal(t, []any{[]any{"Public 0.52"}}, CheckVersionArgs(""))
	assert.Equal(t, []any{[]any{"Beta"}}, CheckVersionArgs("Beta"))
	assert.Equal(t, []any{nil}, EventsArgs())
	assert.Equal(t, []any{[]any{[]byte{1, 2}}}, LibrariesArgs([]byte{1, 2}))
	assert.Equal(t, []any{[]any{int64(42), "sk"}}, GetAllCharactersArgs(42, "sk"))
	assert.Equal(t, []any{[]any{int64(7), "sk"}}, GetCharacterDataArgs(7, "sk"))

	p := &payload.LoginPayload{Username: "u", CharacterSeed: 5, PasswordLength: 3}
	args := LoginArgs(p)
	require.Len(t, args, 1)
	fields, ok := args[0].([]any)
	require.True(t, ok)
	assert.Len(t, fields, 9)
	assert.Equal(t, float64(5), fields[2])
}

func TestRequestArgsEncode(t *testing.T) {
	data, err := protocol.EncodeRequest(TargetGetAllCharacters, GetAllCharactersArgs(42, "sk"), "/1")
	require.NoError(t, err)
	env, err := protocol.DecodeResponse(data)
	require.NoError(t, err)

	args := protocol.Items(protocol.FirstResponseBody(env))
	require.Len(t, args, 1)
	inner := protocol.Items(args[0])
	require.Len(t, inner, 2)
	assert.Equal(t, protocol.Int(42), inner[0])
	assert.Equal(t, protocol.String("sk"), inner[1])
}

func TestParseVersionInfo(t *testing.T) {
	info := ParseVersionInfo(obj("status", 1, "error", 0, "cdn", "https://cdn", "_", 12345.0, "__", "abc", "_rm", true))
	assert.Equal(t, int64(1), info.Status)
	assert.Equal(t, "https://cdn", info.CDN)
	require.NotNil(t, info.CharacterSeed)
	assert.Equal(t, int64(12345), *info.CharacterSeed)
	require.NotNil(t, info.RemoteEnabled)
	assert.True(t, *info.RemoteEnabled)

	params := info.SessionParameters()
	assert.NoError(t, params.Validate())
	assert.Equal(t, int64(12345), params.Seed)
	assert.Equal(t, "abc", params.Key)
}

func TestParseVersionInfoWithoutParameters(t *testing.T) {
	info := ParseVersionInfo(obj("status", 1, "_", nil))
	assert.Nil(t, info.CharacterSeed)
	assert.Empty(t, info.CharacterKey)

	var missing *payload.MissingSessionParametersError
	require.True(t, errors.As(info.SessionParameters().Validate(), &missing))
	assert.True(t, missing.Seed)
	assert.True(t, missing.Key)
}

func TestParseEventsInfo(t *testing.T) {
	events := obj(
		"seasonal", []any{"halloween"},
		"event:permanent", []any{"daily", 3},
		"features", []any{},
	)
	info := ParseEventsInfo(protocol.NewObject().
		Set("status", protocol.Int(1)).
		Set("events", protocol.NewList(events)))

	assert.Equal(t, int64(1), info.Status)
	assert.Equal(t, []any{"halloween"}, info.Events.Seasonal)
	assert.Equal(t, []any{"daily", int64(3)}, info.Events.Permanent)
	assert.Equal(t, []any{}, info.Events.Features)
	assert.Nil(t, info.Events.Packages)

	withPackages := ParseEventCollections(obj("packages", []any{"starter"}))
	assert.Equal(t, []any{"starter"}, withPackages.Packages)
}

func TestParseEventCollectionsUnexpectedShapes(t *testing.T) {
	for _, v := range []protocol.Value{nil, protocol.String("x"), protocol.NewList(), protocol.NewList(protocol.Int(1))} {
		ev := ParseEventCollections(v)
		assert.Equal(t, EmptyEventCollections(), ev)
	}
}

func TestSkippedEvents(t *testing.T) {
	ev := SkippedEvents()
	assert.Zero(t, ev.Status)
	assert.Zero(t, ev.Error)
	assert.Empty(t, ev.Events.Seasonal)
	assert.Empty(t, ev.Events.Permanent)
	assert.Empty(t, ev.Events.Features)
	assert.Nil(t, ev.Events.Packages)
}

func TestParseLoginInfo(t *testing.T) {
	banners := protocol.NewList(
		obj("url", "a.png", "title", "A"),
		protocol.NewList(protocol.NewList(obj("url", "b.png", "menu", "shop", "action", "open"))),
		protocol.String("ignored"),
	)
	o := obj("status", 1, "error", 0, "uid", 99, "sessionkey", "sk", "hash", "h",
		"system_time", "2024-01-01", "clan_season", 4, "__", "tok").
		Set("banners", banners).
		Set("events", protocol.NewList(protocol.String("ramadhan"), protocol.Int(1), protocol.String("anniv")))

	info, err := ParseLoginInfo(o)
	require.NoError(t, err)
	assert.True(t, info.Succeeded())
	assert.Equal(t, int64(99), info.UID)
	assert.Equal(t, "sk", info.SessionKey)
	assert.Equal(t, "4", info.ClanSeason)
	assert.Equal(t, "tok", info.ClientToken)
	assert.Equal(t, []string{"ramadhan", "anniv"}, info.Events)

	require.Len(t, info.Banners, 2)
	assert.Equal(t, "a.png", info.Banners[0].URL)
	assert.Equal(t, "A", info.Banners[0].Title)
	assert.Equal(t, "b.png", info.Banners[1].URL)
	assert.Equal(t, "shop", info.Banners[1].Menu)
	assert.Equal(t, "open", info.Banners[1].Action)
	assert.Equal(t, "b.png", info.Banners[1].Raw["url"])
}

func TestParseLoginEventsFromMapping(t *testing.T) {
	info, err := ParseLoginInfo(obj("status", 0).Set("events", obj("a", "x", "b", 2, "c", "y")))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, info.Events)
	assert.Empty(t, info.Banners)
}

func TestParseLoginInfoMissingSessionKey(t *testing.T) {
	_, err := ParseLoginInfo(obj("status", 1, "uid", 5))
	var shape *MalformedResponseShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "sessionkey", shape.Field)
	assert.Equal(t, TargetLoginUser, shape.Target)

	info, err := ParseLoginInfo(obj("status", 2, "error", 7))
	require.NoError(t, err)
	assert.False(t, info.Succeeded())
}

func TestParseCharacterListNamingSchemes(t *testing.T) {
	o := protocol.NewObject().
		Set("status", protocol.Int(1)).
		Set("tokens", protocol.Int(50)).
		Set("account_data", protocol.NewList(
			obj("char_id", 10, "acc_id", 1, "character_name", "Naruto", "character_level", 60,
				"character_element_1", 2, "character_gold", 1000),
			obj("character_id", "11", "account_id", 1, "name", "Sasuke", "level", 55, "prestige", 3),
			protocol.String("skipped"),
		))

	list, err := ParseCharacterList(o)
	require.NoError(t, err)
	require.Len(t, list.Characters, 2)
	assert.Equal(t, int64(2), list.TotalCharacters)
	assert.Equal(t, int64(50), list.Tokens)

	first := list.Characters[0]
	assert.Equal(t, int64(10), first.CharID)
	assert.Equal(t, "Naruto", first.Name)
	assert.Equal(t, int64(60), first.Level)
	require.NotNil(t, first.Element1)
	assert.Equal(t, int64(2), *first.Element1)
	assert.Nil(t, first.Element2)
	assert.Equal(t, int64(1000), first.Gold)

	second := list.Characters[1]
	assert.Equal(t, int64(11), second.CharID)
	assert.Equal(t, "Sasuke", second.Name)
	assert.Equal(t, int64(55), second.Level)
	assert.Equal(t, int64(3), second.Prestige)
}

func TestParseCharacterListPrefersFirstKey(t *testing.T) {
	o := protocol.NewObject().Set("account_data", protocol.NewList(
		obj("char_id", 1, "character_id", 2, "character_name", "A", "name", "B"),
	))
	list, err := ParseCharacterList(o)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Characters[0].CharID)
	assert.Equal(t, "A", list.Characters[0].Name)
}

func TestParseCharacterListExplicitTotal(t *testing.T) {
	list, err := ParseCharacterList(obj("total_characters", 4))
	require.NoError(t, err)
	assert.Empty(t, list.Characters)
	assert.Equal(t, int64(4), list.TotalCharacters)
}

func TestParseCharacterListMissingID(t *testing.T) {
	o := protocol.NewObject().Set("account_data", protocol.NewList(
		obj("char_id", 7, "name", "somebody"),
		obj("name", "nobody"),
	))
	list, err := ParseCharacterList(o)
	require.NoError(t, err)
	require.Len(t, list.Characters, 2)
	assert.True(t, list.Characters[0].HasID())
	assert.False(t, list.Characters[1].HasID())

	id, idx, err := list.SelectedID(0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, 0, idx)

	_, idx, err = list.SelectedID(5)
	assert.Equal(t, 1, idx)
	var shape *MalformedResponseShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "char_id", shape.Field)

	_, err = ParseCharacterSummary(obj("name", "nobody"))
	assert.True(t, errors.As(err, &shape))

	_, _, err = CharacterList{}.SelectedID(0)
	assert.Error(t, err)
}

func TestCharacterListSelectClamps(t *testing.T) {
	list := CharacterList{Characters: []CharacterSummary{{CharID: 1}, {CharID: 2}, {CharID: 3}}}

	tests := []struct {
		index   int
		wantID  int64
		wantIdx int
	}{
		{-5, 1, 0},
		{0, 1, 0},
		{1, 2, 1},
		{2, 3, 2},
		{99, 3, 2},
	}
	for _, tt := range tests {
		c, idx, ok := list.Select(tt.index)
		require.True(t, ok)
		assert.Equal(t, tt.wantID, c.CharID)
		assert.Equal(t, tt.wantIdx, idx)
	}

	_, _, ok := CharacterList{}.Select(0)
	assert.False(t, ok)
}

func TestParseCharacterData(t *testing.T) {
	o := obj("status", 1, "account_type", 2, "has_unread_mails", true,
		"features", []any{"pvp"}, "pet_data", map[string]any{"pet_id": 3}).
		Set("character_data", obj("character_id", 10, "character_name", "Naruto",
			"character_level", 60, "character_merit", 5, "character_element_1", 1,
			"character_element_3", 4, "character_talent_1", "eoh", "character_ss", 9,
			"character_pvp_points", 12)).
		Set("character_points", obj("atrrib_wind", 10, "atrrib_free", 2)).
		Set("character_slots", obj("weapons", 20, "clothing", 30)).
		Set("character_sets", obj("weapon", "wpn_01", "hair_color", "0|0", "senjutsu_skills", []any{"s1"})).
		Set("character_inventory", obj("char_weapons", "wpn_01,wpn_02", "char_items", "item_01:3")).
		Set("clan", obj("id", 77, "name", "Akatsuki"))

	data := ParseCharacterData(o)
	assert.Equal(t, int64(1), data.Status)
	assert.Equal(t, int64(2), data.AccountType)
	assert.True(t, data.HasUnreadMails)
	assert.Equal(t, []any{"pvp"}, data.Features)
	assert.Equal(t, map[string]any{"pet_id": int64(3)}, data.PetData)
	assert.Equal(t, []any{}, data.Recruiters)

	assert.Equal(t, int64(10), data.Character.ID)
	assert.Equal(t, "Naruto", data.Character.Name)
	assert.Equal(t, int64(5), data.Character.Merit)
	assert.Nil(t, data.Character.Element2)
	require.NotNil(t, data.Character.Element3)
	assert.Equal(t, int64(4), *data.Character.Element3)
	assert.Equal(t, "eoh", data.Character.Talent1)
	assert.Equal(t, int64(12), data.Character.PvPPoints)

	assert.Equal(t, int64(10), data.Points.Wind)
	assert.Equal(t, int64(2), data.Points.Free)
	assert.Equal(t, int64(20), data.Slots.Weapons)
	assert.Equal(t, int64(30), data.Slots.Clothing)
	assert.Equal(t, "wpn_01", data.Sets.Weapon)
	assert.Equal(t, []any{"s1"}, data.Sets.SenjutsuSkills)
	assert.Equal(t, "wpn_01,wpn_02", data.Inventory.Weapons)
	assert.Equal(t, "item_01:3", data.Inventory.Consumables)

	require.NotNil(t, data.Clan.ID)
	assert.Equal(t, int64(77), *data.Clan.ID)
	assert.Equal(t, "Akatsuki", data.Clan.Name)
}

func TestParseCharacterDataDefaults(t *testing.T) {
	data := ParseCharacterData(protocol.NewObject())
	assert.Zero(t, data.Character.ID)
	assert.Equal(t, CharacterPoints{}, data.Points)
	assert.Nil(t, data.Clan.ID)
	assert.Empty(t, data.Features)
}

func TestClientNormalizesReplies(t *testing.T) {
	caller := &fakeCaller{replies: map[string]protocol.Value{
		TargetCheckVersion: protocol.NewTypedObject("VersionResult").
			Set("body", obj("status", 1, "_", 5, "__", "key")),
		TargetLibraries: protocol.NewList(protocol.Int(1)),
		TargetEvents:    nil,
	}}
	c := NewClient(caller)
	ctx := context.Background()

	v, err := c.CheckVersion(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Status)
	assert.Equal(t, "key", v.CharacterKey)

	lib, err := c.Libraries(ctx, []byte{0x78})
	require.NoError(t, err)
	assert.Equal(t, int64(1), lib.Status)

	ev, err := c.Events(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmptyEventCollections(), ev.Events)

	require.Len(t, caller.calls, 3)
	assert.Equal(t, TargetCheckVersion, caller.calls[0].target)
	assert.Equal(t, CheckVersionArgs(DefaultChannel), caller.calls[0].args)
	assert.Equal(t, TargetEvents, caller.calls[2].target)
}

func TestClientPropagatesCallerError(t *testing.T) {
	boom := errors.New("boom")
	c := NewClient(&fakeCaller{err: boom})

	_, err := c.AllCharacters(context.Background(), 1, "sk")
	assert.ErrorIs(t, err, boom)
	_, err = c.CharacterData(context.Background(), 1, "sk")
	assert.ErrorIs(t, err, boom)
}
