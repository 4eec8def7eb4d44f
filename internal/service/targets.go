// Package service holds request builders and response parsers for the
// remote targets a client session calls, in the order the stock client
// calls them.
package service

import (
	"github.com/sagereplay/sagereplay/internal/payload"
)

// Remote targets.
const (
	TargetCheckVersion     = "SystemLogin.checkVersion"
	TargetLibraries        = "Analytics.libraries"
	TargetEvents           = "EventsService.get"
	TargetLoginUser        = "SystemLogin.loginUser"
	TargetGetAllCharacters = "SystemLogin.getAllCharacters"
	TargetGetCharacterData = "SystemLogin.getCharacterData"
)

// DefaultChannel is the build channel the stock client reports.
const DefaultChannel = "Public 0.52"

// DefaultServerID is the routing server id. It is carried in configuration
// but never sent.
const DefaultServerID = 12

// Targets lists every remote target in call order.
var Targets = []string{
	TargetCheckVersion,
	TargetLibraries,
	TargetEvents,
	TargetLoginUser,
	TargetGetAllCharacters,
	TargetGetCharacterData,
}

// CheckVersionArgs wraps the channel in an extra array like the client does.
func CheckVersionArgs(channel string) []any {
	if channel == "" {
		channel = DefaultChannel
	}
	return []any{[]any{channel}}
}

// LibrariesArgs sends the compressed analytics report as a ByteArray.
func LibrariesArgs(report []byte) []any {
	return []any{[]any{report}}
}

// EventsArgs is a single null argument.
func EventsArgs() []any {
	return []any{nil}
}

// LoginArgs wraps the nine login fields in an outer array.
func LoginArgs(p *payload.LoginPayload) []any {
	return []any{p.Fields()}
}

// GetAllCharactersArgs is [[accountUID, sessionKey]].
func GetAllCharactersArgs(uid int64, sessionKey string) []any {
	return []any{[]any{uid, sessionKey}}
}

// GetCharacterDataArgs is [[characterID, sessionKey]].
func GetCharacterDataArgs(characterID int64, sessionKey string) []any {
	return []any{[]any{characterID, sessionKey}}
}
