package testserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"opdflow/internal/core"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *core.FakeClock) {
	t.Helper()
	clock := core.NewFakeClock(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	opts.Clock = clock
	ts := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return ts, clock
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	var data map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&data)
	return resp.StatusCode, data
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	code, body := get(t, ts.URL+"/health")
	if code != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("GET /health = %d %q", code, body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	for _, want := range []int{200, 201, 404, 500, 503} {
		code, _ := get(t, ts.URL+"/status/"+strconv.Itoa(want))
		if code != want {
			t.Errorf("GET /status/%d: expected %d, got %d", want, want, code)
		}
	}
	if code, _ := get(t, ts.URL+"/status/abc"); code != http.StatusBadRequest {
		t.Errorf("GET /status/abc: expected 400, got %d", code)
	}
}

func TestDelayEndpointUsesClock(t *testing.T) {
	ts, clock := newTestServer(t, Options{})
	before := clock.Now()
	code, body := get(t, ts.URL+"/delay/1500")
	if code != http.StatusOK || body != "delayed 1500ms" {
		t.Errorf("GET /delay/1500 = %d %q", code, body)
	}
	if got := clock.Since(before); got != 1500*time.Millisecond {
		t.Errorf("expected the clock to advance 1.5s, got %v", got)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	if code, _ := post(t, ts.URL+"/api/messages", `{"title": " "}`); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a blank title, got %d", code)
	}
	if code, _ := post(t, ts.URL+"/api/messages", `not json`); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad body, got %d", code)
	}
}

func TestTargetUnknownMessage(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	code, _ := post(t, ts.URL+"/api/messages/999/targets", `{"system_codes": ["0000909180"]}`)
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestTitlePropagatesAfterDelay(t *testing.T) {
	ts, clock := newTestServer(t, Options{PropagationDelay: 30 * time.Second})

	code, created := post(t, ts.URL+"/api/messages", `{"title": "自動テストタイトル<1>", "opening_action": 50}`)
	if code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", code)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("create returned no id: %v", created)
	}

	_, body := get(t, ts.URL+"/sp/home")
	if strings.Contains(body, "自動テストタイトル") {
		t.Fatalf("untargeted message listed: %s", body)
	}

	code, targeted := post(t, ts.URL+"/api/messages/"+id+"/targets", `{"system_codes": ["0000909180", "0000909180"]}`)
	if code != http.StatusOK || targeted["targets"] != float64(1) {
		t.Fatalf("target = %d %v", code, targeted)
	}

	clock.Advance(29 * time.Second)
	if _, body = get(t, ts.URL+"/sp/home"); strings.Contains(body, "自動テストタイトル") {
		t.Errorf("listed before the propagation delay: %s", body)
	}

	clock.Advance(time.Second)
	_, body = get(t, ts.URL+"/sp/home")
	if !strings.Contains(body, `<span class="title">自動テストタイトル&lt;1&gt;</span>`) {
		t.Errorf("expected the escaped title after the delay, got %s", body)
	}
	if _, other := get(t, ts.URL+"/sp/home?system_code=0000000001"); strings.Contains(other, "自動テストタイトル") {
		t.Errorf("listed for a doctor outside the target: %s", other)
	}
}

func TestHomeListsNewestFirst(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	for _, title := range []string{"first", "second"} {
		_, m := post(t, ts.URL+"/api/messages", `{"title": "`+title+`"}`)
		post(t, ts.URL+"/api/messages/"+m["id"].(string)+"/targets", `{"system_codes": ["1"]}`)
	}
	_, body := get(t, ts.URL+"/sp/home")
	if strings.Index(body, "second") > strings.Index(body, "first") {
		t.Errorf("expected newest first: %s", body)
	}
}

func TestPointsAccrueAfterDelay(t *testing.T) {
	ts, clock := newTestServer(t, Options{AccrualDelay: 10 * time.Second})

	for _, action := range []string{"50", "25"} {
		_, m := post(t, ts.URL+"/api/messages", `{"title": "t", "opening_action": `+action+`}`)
		post(t, ts.URL+"/api/messages/"+m["id"].(string)+"/targets", `{"system_codes": ["901468"]}`)
	}

	points := func() float64 {
		t.Helper()
		_, body := get(t, ts.URL+"/api/points/901468")
		var data map[string]any
		if err := json.Unmarshal([]byte(body), &data); err != nil {
			t.Fatalf("decode points: %v", err)
		}
		return data["granted"].(float64)
	}

	if got := points(); got != 0 {
		t.Errorf("expected 0 before the delay, got %v", got)
	}
	clock.Advance(10 * time.Second)
	if got := points(); got != 75 {
		t.Errorf("expected 75 after the delay, got %v", got)
	}
}
