package template

import (
	"strings"
	"testing"
)

const pointsBody = `{"systemCode":"00123456","points":{"total":150,"actions":[{"opdId":"48213","granted":50},{"opdId":"48214","granted":100}]}}`

func TestExtract_Fields(t *testing.T) {
	got, err := Extract([]byte(pointsBody), map[string]string{
		"code":  "$.systemCode",
		"total": "$.points.total",
		"first": "$.points.actions[0].opdId",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["code"] != "00123456" || got["total"] != "150" || got["first"] != "48213" {
		t.Errorf("unexpected extraction %v", got)
	}
}

func TestExtract_Errors(t *testing.T) {
	_, err := Extract([]byte(pointsBody), map[string]string{"a": "$.nope", "b": "$.points.none"})
	if err == nil || !strings.Contains(err.Error(), `"a"`) || !strings.Contains(err.Error(), `"b"`) {
		t.Errorf("expected both missing paths reported, got %v", err)
	}

	if _, err := Extract([]byte("<html>"), map[string]string{"a": "$.x"}); err == nil {
		t.Error("expected error for invalid JSON")
	}

	if got, err := Extract([]byte(pointsBody), nil); got != nil || err != nil {
		t.Error("empty rules should yield nil, nil")
	}
}

func TestExtractPath(t *testing.T) {
	v, ok := ExtractPath([]byte(pointsBody), "$.points.actions[1].granted")
	if !ok || v.Int() != 100 {
		t.Errorf("expected 100, got %v (exists=%v)", v, ok)
	}

	if _, ok := ExtractPath([]byte(pointsBody), "$.points.actions[5]"); ok {
		t.Error("out-of-range index should not exist")
	}
	if _, ok := ExtractPath([]byte("not json"), "$.a"); ok {
		t.Error("invalid JSON should not exist")
	}
}

func TestGJSONPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"$.foo.bar", "foo.bar"},
		{"$.items[0].id", "items.0.id"},
		{"$.data[*].name", "data.#.name"},
		{"$.pages[12][0]", "pages.12.0"},
		{"$", ""},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := gjsonPath(tt.in); got != tt.want {
			t.Errorf("gjsonPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
