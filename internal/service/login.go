package service

import (
	"github.com/sagereplay/sagereplay/internal/protocol"
)

// LoginSuccess is the status loginUser returns for accepted credentials.
const LoginSuccess = 1

// Banner is one login banner record.
type Banner struct {
	URL    string         `json:"url,omitempty"`
	Menu   string         `json:"menu,omitempty"`
	Title  string         `json:"title,omitempty"`
	Action string         `json:"action,omitempty"`
	Raw    map[string]any `json:"raw,omitempty"`
}

// LoginInfo is the SystemLogin.loginUser reply.
type LoginInfo struct {
	Status      int64    `json:"status"`
	Error       int64    `json:"error"`
	UID         int64    `json:"uid"`
	SessionKey  string   `json:"-"`
	Hash        string   `json:"hash,omitempty"`
	SystemTime  string   `json:"system_time,omitempty"`
	Banners     []Banner `json:"banners"`
	Events      []string `json:"events"`
	ClanSeason  string   `json:"clan_season,omitempty"`
	CrewSeason  string   `json:"crew_season,omitempty"`
	ClientToken string   `json:"-"`
}

// Succeeded reports whether the server accepted the credentials.
func (l LoginInfo) Succeeded() bool {
	return l.Status == LoginSuccess
}

// ParseLoginInfo reads a normalized loginUser body. A successful status
// without a session key is a malformed response.
func ParseLoginInfo(o *protocol.Object) (LoginInfo, error) {
	info := LoginInfo{
		Status:      intOr(o, 0, "status"),
		Error:       intOr(o, 0, "error"),
		UID:         intOr(o, 0, "uid"),
		SessionKey:  str(o, "sessionkey"),
		Hash:        str(o, "hash"),
		SystemTime:  str(o, "system_time"),
		Events:      loginEvents(o),
		ClanSeason:  str(o, "clan_season"),
		CrewSeason:  str(o, "crew_season"),
		ClientToken: str(o, "__"),
	}

	info.Banners = []Banner{}
	if v, ok := protocol.Lookup(o, "banners"); ok {
		for _, b := range flattenBanners(v, nil) {
			info.Banners = append(info.Banners, Banner{
				URL:    str(b, "url"),
				Menu:   str(b, "menu"),
				Title:  str(b, "title"),
				Action: str(b, "action"),
				Raw:    fieldMap(b),
			})
		}
	}

	if info.Succeeded() && info.SessionKey == "" {
		return info, &MalformedResponseShapeError{Target: TargetLoginUser, Field: "sessionkey"}
	}
	return info, nil
}

// flattenBanners collects every mapping found at any list depth.
func flattenBanners(v protocol.Value, out []*protocol.Object) []*protocol.Object {
	switch val := v.(type) {
	case *protocol.Object:
		if val != nil {
			out = append(out, val)
		}
	case *protocol.List:
		if val == nil {
			return out
		}
		for _, item := range val.Items {
			out = flattenBanners(item, out)
		}
	}
	return out
}

// loginEvents keeps the string entries of a list, or the string values of
// a mapping.
func loginEvents(o *protocol.Object) []string {
	events := []string{}
	v, ok := protocol.Lookup(o, "events")
	if !ok {
		return events
	}
	switch val := v.(type) {
	case *protocol.List:
		for _, item := range val.Items {
			if s, ok := item.(protocol.String); ok {
				events = append(events, string(s))
			}
		}
	case *protocol.Object:
		for _, k := range val.Keys() {
			item, _ := val.Get(k)
			if s, ok := item.(protocol.String); ok {
				events = append(events, string(s))
			}
		}
	}
	return events
}
