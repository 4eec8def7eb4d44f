package workflow

import "github.com/sagereplay/sagereplay/internal/service"

// State is a position in the session workflow.
type State int

const (
	StateInit State = iota
	StateVersionChecked
	StateAnalyticsDone
	StateEventsDone
	StateLoggedIn
	StateCharactersListed
	StateCharacterDataFetched
	StateComplete
	StateFailed
)

// stateStrings maps State values to their JSON string representation.
var stateStrings = map[State]string{
	StateInit:                 "init",
	StateVersionChecked:       "version_checked",
	StateAnalyticsDone:        "analytics_done",
	StateEventsDone:           "events_done",
	StateLoggedIn:             "logged_in",
	StateCharactersListed:     "characters_listed",
	StateCharacterDataFetched: "character_data_fetched",
	StateComplete:             "complete",
	StateFailed:               "failed",
}

// stateTargets maps each call-bearing state to the target reached through it.
var stateTargets = map[State]string{
	StateVersionChecked:       service.TargetCheckVersion,
	StateAnalyticsDone:        service.TargetLibraries,
	StateEventsDone:           service.TargetEvents,
	StateLoggedIn:             service.TargetLoginUser,
	StateCharactersListed:     service.TargetGetAllCharacters,
	StateCharacterDataFetched: service.TargetGetCharacterData,
}

// String returns the string representation of State.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes State as a JSON string (e.g. "logged_in").
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Target returns the remote target called to reach s, if any.
func (s State) Target() string {
	return stateTargets[s]
}
