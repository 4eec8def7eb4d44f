package service

import (
	"github.com/sagereplay/sagereplay/internal/payload"
	"github.com/sagereplay/sagereplay/internal/protocol"
)

// VersionInfo is the SystemLogin.checkVersion reply. The server embeds the
// login obfuscation seed and key under the "_" and "__" fields.
type VersionInfo struct {
	Status        int64  `json:"status"`
	Error         int64  `json:"error"`
	CDN           string `json:"cdn,omitempty"`
	CharacterSeed *int64 `json:"character_seed,omitempty"`
	CharacterKey  string `json:"character_key,omitempty"`
	RemoteEnabled *bool  `json:"remote_enabled,omitempty"`
}

// ParseVersionInfo reads a normalized checkVersion body.
func ParseVersionInfo(o *protocol.Object) VersionInfo {
	return VersionInfo{
		Status:        intOr(o, 0, "status"),
		Error:         intOr(o, 0, "error"),
		CDN:           str(o, "cdn"),
		CharacterSeed: optInt(o, "_"),
		CharacterKey:  str(o, "__"),
		RemoteEnabled: optBool(o, "_rm"),
	}
}

// SessionParameters returns the seed and key handed out by the server.
func (v VersionInfo) SessionParameters() payload.SessionParameters {
	var p payload.SessionParameters
	if v.CharacterSeed != nil {
		p.Seed = *v.CharacterSeed
		p.HasSeed = true
	}
	p.Key = v.CharacterKey
	return p
}

// StatusReply is a bare status/error reply.
type StatusReply struct {
	Status int64 `json:"status"`
	Error  int64 `json:"error"`
}

// ParseStatusReply reads a normalized status/error body.
func ParseStatusReply(o *protocol.Object) StatusReply {
	return StatusReply{
		Status: intOr(o, 0, "status"),
		Error:  intOr(o, 0, "error"),
	}
}

// EventCollections groups the event lists of EventsService.get.
// Packages is nil when the server omits it.
type EventCollections struct {
	Seasonal  []any `json:"seasonal"`
	Permanent []any `json:"permanent"`
	Features  []any `json:"features"`
	Packages  []any `json:"packages"`
}

// EmptyEventCollections has every list empty and no packages.
func EmptyEventCollections() EventCollections {
	return EventCollections{Seasonal: []any{}, Permanent: []any{}, Features: []any{}}
}

// ParseEventCollections accepts a mapping or a list whose first element is
// a mapping. Anything else yields empty collections.
func ParseEventCollections(v protocol.Value) EventCollections {
	var o *protocol.Object
	switch val := v.(type) {
	case *protocol.Object:
		o = val
	case *protocol.List:
		if val != nil && val.Len() > 0 {
			o, _ = val.Items[0].(*protocol.Object)
		}
	}
	if o == nil || o.Len() == 0 {
		return EmptyEventCollections()
	}

	ev := EventCollections{
		Seasonal:  items(o, "seasonal"),
		Permanent: items(o, "event:permanent"),
		Features:  items(o, "features"),
	}
	if l, ok := protocol.ListField(o, "packages"); ok {
		ev.Packages = make([]any, 0, l.Len())
		for _, item := range l.Items {
			ev.Packages = append(ev.Packages, protocol.ToGo(item))
		}
	}
	return ev
}

// EventsInfo is the EventsService.get reply.
type EventsInfo struct {
	Status int64            `json:"status"`
	Error  int64            `json:"error"`
	Events EventCollections `json:"events"`
}

// ParseEventsInfo reads a normalized EventsService.get body.
func ParseEventsInfo(o *protocol.Object) EventsInfo {
	events, _ := protocol.Lookup(o, "events")
	return EventsInfo{
		Status: intOr(o, 0, "status"),
		Error:  intOr(o, 0, "error"),
		Events: ParseEventCollections(events),
	}
}

// SkippedEvents is the result used when the events call is disabled.
func SkippedEvents() EventsInfo {
	return EventsInfo{Events: EmptyEventCollections()}
}
