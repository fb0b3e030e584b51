package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rcfox/spritekeeper/internal/identity"
	"github.com/rcfox/spritekeeper/internal/persistence"
	"github.com/rcfox/spritekeeper/internal/presence"
	"github.com/rcfox/spritekeeper/internal/rooms"
	"github.com/rcfox/spritekeeper/internal/spatial"
	"github.com/rcfox/spritekeeper/internal/touch"
)

const testAdminKey = "hunter2"

// newTestServer wires a full server against a throwaway data directory.
// 10.0.0.1 is pre-registered as ryan; everyone else is a stranger.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	pres := presence.NewStore(filepath.Join(dir, "mood.json"))
	if err := pres.EnsureDefault(presence.Record{Mood: "happy", Room: "workshop", Location: "fireplace"}); err != nil {
		t.Fatalf("seed presence: %v", err)
	}

	ids := identity.NewResolver(filepath.Join(dir, "identity.json"))
	if err := ids.Assign("10.0.0.1", identity.Ryan); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	sp := spatial.NewResolver(filepath.Join(dir, "spatial-map.json"), filepath.Join(dir, "spatial-cache.json"))
	rm := rooms.NewStore(filepath.Join(dir, "locations.json"))

	db, err := persistence.Open(filepath.Join(dir, "sprite.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := touch.New(pres, ids, sp, touch.NewWakeThrottle(touch.WakeWindow), nil, db)
	t.Cleanup(eng.Close)

	srv := &Server{
		Engine:   eng,
		Presence: pres,
		Identity: ids,
		Spatial:  sp,
		Rooms:    rm,
		DB:       db,
		AdminKey: testAdminKey,
	}
	return srv, dir
}

// do runs one request through the full handler stack with a fixed caller
// address and decodes a JSON body when out is non-nil.
func do(t *testing.T, srv *Server, method, path, addr, body string, out any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = addr + ":54321"
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response: %v\n%s", method, path, err, w.Body.String())
		}
	}
	return w
}

func TestTouchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"garbage", "{not json"},
		{"bad kind", `{"kind":"poke","x":0.5,"y":0.5,"onTarget":true}`},
		{"missing coords", `{"kind":"tap","onTarget":true}`},
		{"x out of range", `{"kind":"tap","x":1.5,"y":0.5,"onTarget":true}`},
		{"negative y", `{"kind":"tap","x":0.5,"y":-0.1,"onTarget":true}`},
	}
	for _, tc := range cases {
		w := do(t, srv, http.MethodPost, "/touch", "10.0.0.1", tc.body, nil, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tc.name, w.Code)
		}
	}

	if w := do(t, srv, http.MethodGet, "/touch", "10.0.0.1", "", nil, nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /touch: got %d, want 405", w.Code)
	}
}

func TestTouchFromStrangerPromptsIdentification(t *testing.T) {
	srv, _ := newTestServer(t)

	var res struct {
		OK            bool `json:"ok"`
		Unknown       bool `json:"unknown"`
		NeedsIdentify bool `json:"needsIdentify"`
	}
	body := `{"kind":"tap","x":0.5,"y":0.5,"onTarget":true}`
	w := do(t, srv, http.MethodPost, "/touch", "192.168.1.77", body, &res, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	if !res.OK || !res.Unknown || !res.NeedsIdentify {
		t.Fatalf("stranger tap on the sprite should prompt identification: %+v", res)
	}
}

func TestIdentifyThenTouch(t *testing.T) {
	srv, _ := newTestServer(t)

	if w := do(t, srv, http.MethodPost, "/identify", "192.168.1.77", `{"identity":"gandalf"}`, nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown identity: got %d, want 400", w.Code)
	}

	var idRes struct {
		OK       bool   `json:"ok"`
		Identity string `json:"identity"`
	}
	w := do(t, srv, http.MethodPost, "/identify", "192.168.1.77", `{"identity":"kat"}`, &idRes, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("identify: got %d: %s", w.Code, w.Body.String())
	}
	if !idRes.OK || idRes.Identity != "kat" {
		t.Fatalf("identify response: %+v", idRes)
	}

	var res struct {
		OK  bool   `json:"ok"`
		Who string `json:"who"`
	}
	body := `{"kind":"tap","x":0.5,"y":0.5,"onTarget":true}`
	w = do(t, srv, http.MethodPost, "/touch", "192.168.1.77", body, &res, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("touch after identify: got %d", w.Code)
	}
	if !res.OK || res.Who != "kat" {
		t.Fatalf("identified visitor should get a reaction: %+v", res)
	}
}

func TestPendingTouchesDrainIsDestructive(t *testing.T) {
	srv, _ := newTestServer(t)

	// Two known-visitor touches land in the pending queue.
	body := `{"kind":"tap","x":0.3,"y":0.3,"onTarget":true}`
	for i := 0; i < 2; i++ {
		if w := do(t, srv, http.MethodPost, "/touch", "10.0.0.1", body, nil, nil); w.Code != http.StatusOK {
			t.Fatalf("touch %d: got %d", i, w.Code)
		}
	}

	var batch struct {
		Events []touch.Event `json:"events"`
	}
	do(t, srv, http.MethodGet, "/pending-touches", "10.0.0.1", "", &batch, nil)
	if len(batch.Events) != 2 {
		t.Fatalf("first drain: got %d events, want 2", len(batch.Events))
	}

	batch.Events = nil
	do(t, srv, http.MethodGet, "/pending-touches", "10.0.0.1", "", &batch, nil)
	if len(batch.Events) != 0 {
		t.Fatalf("second drain should be empty, got %d", len(batch.Events))
	}
}

func TestSpatialCacheEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	bad := []string{
		`{"room":"workshop","cell":"3_4"}`,
		`{"room":"workshop","cell":"12_4","description":"a kettle"}`,
		`{not json`,
	}
	for _, body := range bad {
		if w := do(t, srv, http.MethodPost, "/spatial-cache", "10.0.0.1", body, nil, nil); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: got %d, want 400", body, w.Code)
		}
	}

	var res struct {
		OK     bool `json:"ok"`
		Cached bool `json:"cached"`
	}
	w := do(t, srv, http.MethodPost, "/spatial-cache", "10.0.0.1",
		`{"room":"workshop","cell":"3_4","description":"a dusty kettle"}`, &res, nil)
	if w.Code != http.StatusOK || !res.OK || !res.Cached {
		t.Fatalf("cache write: code %d, res %+v", w.Code, res)
	}

	// The cached description now wins for any point in that cell.
	if got := srv.Spatial.Resolve("workshop", 0.35, 0.45); got != "a dusty kettle" {
		t.Fatalf("resolve after cache: %q", got)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	srv, dir := newTestServer(t)

	var rec presence.Record
	w := do(t, srv, http.MethodGet, "/presence", "10.0.0.1", "", &rec, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if rec.Mood != "happy" || rec.Room != "workshop" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	os.Remove(filepath.Join(dir, "mood.json"))
	if w := do(t, srv, http.MethodGet, "/presence", "10.0.0.1", "", nil, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("missing record: got %d, want 500", w.Code)
	}
}

func TestRoomMutationAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"name":"attic","wallpaper":"cobwebs"}`

	if w := do(t, srv, http.MethodPost, "/rooms", "10.0.0.1", body, nil,
		map[string]string{"Authorization": "Bearer wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: got %d, want 401", w.Code)
	}

	srv.AdminKey = ""
	if w := do(t, srv, http.MethodPost, "/rooms", "10.0.0.1", body, nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("no admin key configured: got %d, want 403", w.Code)
	}
	srv.AdminKey = testAdminKey

	auth := map[string]string{"Authorization": "Bearer " + testAdminKey}
	if w := do(t, srv, http.MethodPost, "/rooms", "10.0.0.1", body, nil, auth); w.Code != http.StatusOK {
		t.Fatalf("authorized create: got %d", w.Code)
	}

	var catalog struct {
		Rooms map[string]rooms.Room `json:"rooms"`
	}
	do(t, srv, http.MethodGet, "/rooms", "10.0.0.1", "", &catalog, nil)
	if _, ok := catalog.Rooms["attic"]; !ok {
		t.Fatalf("attic missing from catalog: %v", catalog.Rooms)
	}

	loc := `{"name":"trunk","x":0.7,"y":0.2}`
	if w := do(t, srv, http.MethodPost, "/rooms/attic/locations", "10.0.0.1", loc, nil, auth); w.Code != http.StatusOK {
		t.Fatalf("add location: got %d", w.Code)
	}

	if w := do(t, srv, http.MethodDelete, "/rooms/nope", "10.0.0.1", "", nil, auth); w.Code != http.StatusNotFound {
		t.Fatalf("delete unknown room: got %d, want 404", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/rooms/attic", "10.0.0.1", "", nil, auth); w.Code != http.StatusOK {
		t.Fatalf("delete attic: got %d", w.Code)
	}
}

func TestWeatherAndStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	var wx struct {
		Ambient string `json:"ambient"`
	}
	w := do(t, srv, http.MethodGet, "/weather", "10.0.0.1", "", &wx, nil)
	if w.Code != http.StatusOK || wx.Ambient == "" {
		t.Fatalf("weather without a client should still give ambience: code %d, %+v", w.Code, wx)
	}

	var status struct {
		Name          string `json:"name"`
		KnownVisitors int    `json:"known_visitors"`
		Weather       bool   `json:"weather"`
	}
	w = do(t, srv, http.MethodGet, "/status", "10.0.0.1", "", &status, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if status.Name != "spritekeeper" || status.KnownVisitors != 1 || status.Weather {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestXForwardedForWinsOverRemoteAddr(t *testing.T) {
	srv, _ := newTestServer(t)

	var res struct {
		OK  bool   `json:"ok"`
		Who string `json:"who"`
	}
	body := `{"kind":"tap","x":0.5,"y":0.5,"onTarget":true}`
	w := do(t, srv, http.MethodPost, "/touch", "127.0.0.1", body, &res,
		map[string]string{"X-Forwarded-For": "10.0.0.1, 172.16.0.9"})
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if res.Who != "ryan" {
		t.Fatalf("proxy hop should resolve to ryan, got %+v", res)
	}
}
