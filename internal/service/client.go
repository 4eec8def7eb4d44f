package service

import (
	"context"

	"github.com/sagereplay/sagereplay/internal/payload"
	"github.com/sagereplay/sagereplay/internal/protocol"
)

// Caller performs one remote call and returns the raw reply body.
type Caller interface {
	Invoke(ctx context.Context, target string, args []any) (protocol.Value, error)
}

// Client issues typed calls through a Caller.
type Client struct {
	caller Caller
}

// NewClient wraps caller.
func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) call(ctx context.Context, target string, args []any) (*protocol.Object, error) {
	body, err := c.caller.Invoke(ctx, target, args)
	if err != nil {
		return nil, err
	}
	return protocol.Normalize(body), nil
}

// CheckVersion calls SystemLogin.checkVersion for channel.
func (c *Client) CheckVersion(ctx context.Context, channel string) (VersionInfo, error) {
	o, err := c.call(ctx, TargetCheckVersion, CheckVersionArgs(channel))
	if err != nil {
		return VersionInfo{}, err
	}
	return ParseVersionInfo(o), nil
}

// Libraries reports the compressed analytics payload.
func (c *Client) Libraries(ctx context.Context, report []byte) (StatusReply, error) {
	o, err := c.call(ctx, TargetLibraries, LibrariesArgs(report))
	if err != nil {
		return StatusReply{}, err
	}
	return ParseStatusReply(o), nil
}

// Events calls EventsService.get.
func (c *Client) Events(ctx context.Context) (EventsInfo, error) {
	o, err := c.call(ctx, TargetEvents, EventsArgs())
	if err != nil {
		return EventsInfo{}, err
	}
	return ParseEventsInfo(o), nil
}

// Login sends the synthesized login payload.
func (c *Client) Login(ctx context.Context, p *payload.LoginPayload) (LoginInfo, error) {
	o, err := c.call(ctx, TargetLoginUser, LoginArgs(p))
	if err != nil {
		return LoginInfo{}, err
	}
	return ParseLoginInfo(o)
}

// AllCharacters lists the account's characters.
func (c *Client) AllCharacters(ctx context.Context, uid int64, sessionKey string) (CharacterList, error) {
	o, err := c.call(ctx, TargetGetAllCharacters, GetAllCharactersArgs(uid, sessionKey))
	if err != nil {
		return CharacterList{}, err
	}
	return ParseCharacterList(o)
}

// CharacterData fetches the detail record of one character.
func (c *Client) CharacterData(ctx context.Context, characterID int64, sessionKey string) (CharacterData, error) {
	o, err := c.call(ctx, TargetGetCharacterData, GetCharacterDataArgs(characterID, sessionKey))
	if err != nil {
		return CharacterData{}, err
	}
	return ParseCharacterData(o), nil
}
