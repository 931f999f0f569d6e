package legacy

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// UnknownComponent is the sentinel a legacy component falls back to when no
// variant is registered for its class name. The row is imported anyway and
// flagged for manual follow-up; one unrecognized component must never abort
// a migration.
const UnknownComponent = "Unknown"

// Variant describes how one legacy component class translates into a new
// dynamic-content component. Adding support for another legacy component
// means registering another variant, nothing else.
type Variant struct {
	// Component is the new component name.
	Component string

	// DefaultMode is the component mode new rows start in.
	DefaultMode int

	// Convert maps the old settings shape onto the new one. Nil means
	// the shape is unchanged and the JSON passes through unmodified.
	Convert func(old map[string]any) map[string]any
}

// variants is the translation registry, keyed by the legacy fully-qualified
// class name.
var variants = map[string]Variant{
	"JuiceControlLibrary.SimpleMenu": {
		Component:   "Repeater",
		DefaultMode: 2,
		Convert: renameSettings(map[string]string{
			"MainTemplate":         "templateHtml",
			"ItemTemplate":         "itemHtml",
			"SelectedItemTemplate": "selectedItemHtml",
			"QueryId":              "dataQueryId",
		}),
	},
	"JuiceControlLibrary.MLSimpleMenu": {
		Component:   "Repeater",
		DefaultMode: 2,
		Convert: renameSettings(map[string]string{
			"MainTemplate":         "templateHtml",
			"ItemTemplate":         "itemHtml",
			"SelectedItemTemplate": "selectedItemHtml",
			"QueryId":              "dataQueryId",
			"LanguageCode":         "languageCode",
		}),
	},
	"JuiceControlLibrary.ProductModule": {
		Component:   "Repeater",
		DefaultMode: 1,
		Convert: renameSettings(map[string]string{
			"ProductTemplate":  "itemHtml",
			"OverviewTemplate": "templateHtml",
			"QueryId":          "dataQueryId",
		}),
	},
	"JuiceControlLibrary.AccountWiser2": {
		Component:   "Account",
		DefaultMode: 1,
	},
	"JuiceControlLibrary.ShoppingBasket": {
		Component:   "ShoppingBasket",
		DefaultMode: 0,
	},
	"JuiceControlLibrary.WebPage": {
		Component:   "WebPage",
		DefaultMode: 1,
	},
	"JuiceControlLibrary.Pagination": {
		Component:   "Pagination",
		DefaultMode: 0,
		Convert:     lowerCamelSettings,
	},
	"JuiceControlLibrary.DynamicFilter": {
		Component:   "Filter",
		DefaultMode: 0,
		Convert:     lowerCamelSettings,
	},
	"JuiceControlLibrary.Sendform": {
		Component:   "WebForm",
		DefaultMode: 0,
		Convert: renameSettings(map[string]string{
			"FormHtml":      "formHtml",
			"SuccessHtml":   "successHtml",
			"ErrorHtml":     "errorHtml",
			"SendToAddress": "receiverAddress",
			"Subject":       "subject",
		}),
	},
	"JuiceControlLibrary.DataSelectorParser": {
		Component:   "DataSelectorParser",
		DefaultMode: 0,
	},
	"JuiceControlLibrary.DBField": {
		Component:   "Repeater",
		DefaultMode: 0,
		Convert: renameSettings(map[string]string{
			"FieldName": "itemHtml",
			"QueryId":   "dataQueryId",
		}),
	},
}

// TranslatedComponent is the outcome of translating one legacy
// dynamic-content row.
type TranslatedComponent struct {
	Component string
	Settings  string // JSON
	Title     string
	Mode      int
}

// TranslateComponentSettings maps a legacy component row onto the new
// component model. It never fails: unknown class names and unparseable
// settings degrade to a pass-through flagged for manual conversion.
func TranslateComponentSettings(legacyClass, visibleDescription, oldSettings string) TranslatedComponent {
	variant, ok := variants[legacyClass]
	if !ok {
		return TranslatedComponent{
			Component: UnknownComponent,
			Settings:  oldSettings,
			Title:     fmt.Sprintf("TODO - %s - This needs to be converted manually!", legacyClass),
		}
	}
	out := TranslatedComponent{
		Component: variant.Component,
		Settings:  oldSettings,
		Title:     visibleDescription,
		Mode:      variant.DefaultMode,
	}
	if variant.Convert == nil || oldSettings == "" {
		return out
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(oldSettings), &parsed); err != nil {
		// Settings that are not a JSON object travel unchanged; the
		// editor shows them raw.
		return out
	}
	converted, err := json.Marshal(variant.Convert(parsed))
	if err != nil {
		return out
	}
	out.Settings = string(converted)
	return out
}

// renameSettings builds a Convert that renames the listed keys, keeps
// unlisted keys as-is and runs the legacy syntax translator over every
// string value so embedded placeholders come along.
func renameSettings(names map[string]string) func(map[string]any) map[string]any {
	return func(old map[string]any) map[string]any {
		out := make(map[string]any, len(old))
		for key, value := range old {
			if renamed, ok := names[key]; ok {
				key = renamed
			}
			out[key] = convertSettingValue(value)
		}
		return out
	}
}

// lowerCamelSettings lowercases the first rune of every key; the component
// kept its settings shape but the new model uses lowerCamel names.
func lowerCamelSettings(old map[string]any) map[string]any {
	out := make(map[string]any, len(old))
	for key, value := range old {
		runes := []rune(key)
		if len(runes) > 0 {
			runes[0] = unicode.ToLower(runes[0])
		}
		out[string(runes)] = convertSettingValue(value)
	}
	return out
}

func convertSettingValue(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if strings.Contains(s, "{") || strings.Contains(s, "contentid=") {
		return ConvertLegacyReplacements(ConvertLegacyDynamicContent(s, false))
	}
	return s
}
