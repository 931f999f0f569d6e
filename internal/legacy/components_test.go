package legacy

import (
	"encoding/json"
	"strings"
	"testing"
)

func settingsMap(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("settings are not valid JSON: %v\n%s", err, raw)
	}
	return m
}

func TestTranslateSimpleMenu(t *testing.T) {
	got := TranslateComponentSettings("JuiceControlLibrary.SimpleMenu", "Main menu",
		`{"MainTemplate":"<ul>{items}</ul>","ItemTemplate":"<li>{title_seo}</li>","QueryId":"12"}`)

	if got.Component != "Repeater" {
		t.Fatalf("component = %q, want Repeater", got.Component)
	}
	if got.Mode != 2 {
		t.Fatalf("mode = %d, want 2", got.Mode)
	}
	if got.Title != "Main menu" {
		t.Fatalf("title = %q", got.Title)
	}

	m := settingsMap(t, got.Settings)
	if m["templateHtml"] != "<ul>{items:Raw}</ul>" {
		t.Fatalf("templateHtml = %q", m["templateHtml"])
	}
	if m["itemHtml"] != "<li>{title:Seo}</li>" {
		t.Fatalf("itemHtml = %q, legacy syntax not translated", m["itemHtml"])
	}
	if m["dataQueryId"] != "12" {
		t.Fatalf("dataQueryId = %v", m["dataQueryId"])
	}
	if _, stale := m["MainTemplate"]; stale {
		t.Fatalf("old key MainTemplate survived the rename")
	}
}

func TestTranslatePaginationLowerCamel(t *testing.T) {
	got := TranslateComponentSettings("JuiceControlLibrary.Pagination", "Pager",
		`{"PageSize":25,"LinkFormat":"?p={pagenr}"}`)

	if got.Component != "Pagination" {
		t.Fatalf("component = %q", got.Component)
	}
	m := settingsMap(t, got.Settings)
	if m["pageSize"] != float64(25) {
		t.Fatalf("pageSize = %v", m["pageSize"])
	}
	if _, stale := m["PageSize"]; stale {
		t.Fatalf("old key PageSize survived")
	}
}

func TestTranslateUnknownComponent(t *testing.T) {
	got := TranslateComponentSettings("JuiceControlLibrary.SomethingNew", "Widget", `{"a":1}`)

	if got.Component != UnknownComponent {
		t.Fatalf("component = %q, want %q", got.Component, UnknownComponent)
	}
	if got.Settings != `{"a":1}` {
		t.Fatalf("settings changed: %q", got.Settings)
	}
	if !strings.Contains(got.Title, "converted manually") || !strings.Contains(got.Title, "SomethingNew") {
		t.Fatalf("title does not flag manual conversion: %q", got.Title)
	}
}

func TestTranslateUnparseableSettingsPassThrough(t *testing.T) {
	raw := "not json at all"
	got := TranslateComponentSettings("JuiceControlLibrary.SimpleMenu", "Menu", raw)
	if got.Settings != raw {
		t.Fatalf("unparseable settings changed: %q", got.Settings)
	}
	if got.Component != "Repeater" {
		t.Fatalf("component = %q", got.Component)
	}
}

func TestTranslatePassThroughComponent(t *testing.T) {
	raw := `{"BasketTemplate":"<div/>"}`
	got := TranslateComponentSettings("JuiceControlLibrary.ShoppingBasket", "Basket", raw)
	if got.Component != "ShoppingBasket" {
		t.Fatalf("component = %q", got.Component)
	}
	// No Convert registered: JSON travels byte for byte.
	if got.Settings != raw {
		t.Fatalf("settings changed without a converter: %q", got.Settings)
	}
}
