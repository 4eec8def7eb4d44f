// Package servicetest provides a fake remoting gateway for tests.
package servicetest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/sagereplay/sagereplay/internal/protocol"
	"github.com/sagereplay/sagereplay/internal/service"
)

// CharacterKey is the 16-byte key handed out by StandardReplies.
const CharacterKey = "0123456789abcdef"

// Gateway answers single-call envelopes with a fixed reply per target.
type Gateway struct {
	mu      sync.Mutex
	replies map[string]protocol.Value
	failing map[string]int
	calls   []string
}

// NewGateway returns a gateway with no replies configured. Unknown targets
// are answered with an undefined body.
func NewGateway() *Gateway {
	return &Gateway{
		replies: map[string]protocol.Value{},
		failing: map[string]int{},
	}
}

// Reply sets the body returned for target.
func (g *Gateway) Reply(target string, body protocol.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[target] = body
}

// Fail makes calls to target answer with the HTTP status code.
func (g *Gateway) Fail(target string, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failing[target] = status
}

// Calls returns the targets called so far in order.
func (g *Gateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// Start serves the gateway until the returned server is closed.
func (g *Gateway) Start() *httptest.Server {
	return httptest.NewServer(g)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	env, err := protocol.DecodeResponse(data)
	if err != nil || env.Len() != 1 {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}
	msg := env.Messages[0]

	g.mu.Lock()
	g.calls = append(g.calls, msg.Target)
	reply := g.replies[msg.Target]
	status := g.failing[msg.Target]
	g.mu.Unlock()

	if status != 0 {
		http.Error(w, "failure", status)
		return
	}
	out, err := protocol.EncodeResponse(msg.Path, reply, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(out)
}

// Mapping builds an anonymous object from alternating keys and Go values.
func Mapping(kv ...any) *protocol.Object {
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

// Character builds a character summary record.
func Character(id int, name string) *protocol.Object {
	return Mapping("char_id", id, "acc_id", 9, "character_name", name, "character_level", 10)
}

// StandardReplies configures a successful reply for every target.
func StandardReplies(g *Gateway, chars ...protocol.Value) {
	g.Reply(service.TargetCheckVersion, Mapping("status", 1, "error", 0, "cdn", "https://cdn", "_", 12345, "__", CharacterKey))
	g.Reply(service.TargetLibraries, Mapping("status", 1, "error", 0))
	g.Reply(service.TargetEvents, Mapping("status", 1).Set("events", Mapping("seasonal", []any{"xmas"})))
	g.Reply(service.TargetLoginUser, Mapping("status", 1, "error", 0, "uid", 42, "sessionkey", "sk-1", "hash", "h"))
	g.Reply(service.TargetGetAllCharacters, Mapping("status", 1).Set("account_data", protocol.NewList(chars...)))
	g.Reply(service.TargetGetCharacterData, Mapping("status", 1).
		Set("character_data", Mapping("character_id", 1, "character_name", "first")))
}

// Assets serves a compressed item-level table for library URLs and a
// fixed-size body for every other asset.
type Assets struct {
	library []byte
}

// NewAssets returns an asset getter whose item-level table is levelsJSON.
func NewAssets(levelsJSON string) *Assets {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte(levelsJSON))
	zw.Close()
	return &Assets{library: buf.Bytes()}
}

// Get implements assets.Getter.
func (a *Assets) Get(_ context.Context, url string) ([]byte, error) {
	if strings.HasSuffix(url, "library.bin") {
		return a.library, nil
	}
	return make([]byte, 128), nil
}
