// Package legacy migrates the predecessor easy_* schema into the wiser_*
// schema and translates the old template syntax into the new one.
//
// The translation functions in this file are pure string rewrites. Inputs
// that contain none of the legacy constructs pass through unchanged, and
// empty input is returned as-is, so the pipeline is safe to run over any
// template body at any time.
package legacy

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	cryptRe = regexp.MustCompile(`(?i)\{([^{}|]+?)_(normal)?(de|en)crypt(_withdate)?(?:\|(\d+))?\}`)
	likeRe  = regexp.MustCompile(`(?i)(LIKE\s+)'(%?)((?:\[\{[^{}]+\}\])|(?:\{[^{}]+\}))(%?)'`)
	imgRe   = regexp.MustCompile(`(?is)<img\b[^>]*?\bcontentid="(\d+)"[^>]*?/?>`)
	dataRe  = regexp.MustCompile(`(?is)\bdata="([^"]*)"`)
)

// basicReplacements maps a legacy suffix to the replacement method of the
// new syntax. Order only matters for readability; the suffix must sit
// directly before the closing brace or parameter separator, so no entry can
// shadow another.
var basicReplacements = []struct {
	suffix    string
	method    string
	fixedArgs string
}{
	{"seo", "Seo", ""},
	{"htmlencode", "HtmlEncode", ""},
	{"sha512", "Sha512", ""},
	{"urldataescape", "UrlEncode", ""},
	{"urldataunescape", "UrlDecode", ""},
	{"striphtml", "StripHtml", ""},
	{"valutasup", "CurrencySup", ""},
	{"valuta", "Currency", "true"},
	{"price", "Currency", "true"},
	{"currency", "Currency", "true"},
	{"jsonsafe", "JsonSafe", ""},
	{"stripstyle", "StripInlineStyle", ""},
	{"base64", "Base64", ""},
}

// ConvertLegacyReplacements rewrites all legacy placeholder forms in the
// input to the new {field:Method(args)} syntax. The rewrites run as a fixed
// pipeline: crypt forms, LIKE patterns, the basic suffix table, {items}.
func ConvertLegacyReplacements(input string) string {
	if input == "" {
		return input
	}
	out := convertCryptPlaceholders(input)
	out = convertLikePatterns(out)
	for _, r := range basicReplacements {
		out = rewriteSuffix(out, r.suffix, r.method, r.fixedArgs)
	}
	out = strings.ReplaceAll(out, "{items}", "{items:Raw}")
	return out
}

// convertCryptPlaceholders rewrites {field_decrypt}, {field_encrypt},
// {field_normaldecrypt} and their _withdate variants. An optional |n suffix
// becomes an explicit minutes-override argument:
//
//	{name_decrypt}             -> {name:Decrypt(false)}
//	{name_decrypt_withdate|30} -> {name:Decrypt(true, 30)}
func convertCryptPlaceholders(input string) string {
	return cryptRe.ReplaceAllStringFunc(input, func(m string) string {
		sub := cryptRe.FindStringSubmatch(m)
		field, normal, direction, withDate, minutes := sub[1], sub[2], sub[3], sub[4], sub[5]

		method := "Decrypt"
		if strings.EqualFold(direction, "en") {
			method = "Encrypt"
		}
		if normal != "" {
			method += "Normal"
		}
		args := "false"
		if withDate != "" {
			args = "true"
		}
		if minutes != "" {
			args += ", " + minutes
		}
		return fmt.Sprintf("{%s:%s(%s)}", field, method, args)
	})
}

// convertLikePatterns pulls wildcard percent signs out of quoted
// placeholder interpolations so they cannot end up inside the replaced
// value:
//
//	LIKE '%{search}%' -> LIKE CONCAT('%', '{search}', '%')
//	LIKE '{search}%'  -> LIKE CONCAT('{search}', '%')
//
// Legacy bracket decoration ([{x}]) is kept as-is inside the CONCAT.
func convertLikePatterns(input string) string {
	return likeRe.ReplaceAllStringFunc(input, func(m string) string {
		sub := likeRe.FindStringSubmatch(m)
		like, prefix, token, suffix := sub[1], sub[2], sub[3], sub[4]
		if prefix == "" && suffix == "" {
			return m
		}
		parts := make([]string, 0, 3)
		if prefix != "" {
			parts = append(parts, "'%'")
		}
		parts = append(parts, "'"+token+"'")
		if suffix != "" {
			parts = append(parts, "'%'")
		}
		return like + "CONCAT(" + strings.Join(parts, ", ") + ")"
	})
}

// rewriteSuffix is the shared rewrite behind the basic suffix table. Any
// |-delimited parameter list in the legacy form is re-nested into the
// argument list of the new form.
//
// Parameters that themselves contain an unbalanced { (e.g.
// {price_currency|{culture}}) lose their closing brace to the outer match;
// that brace is restored on the parameter and the outer closing brace is
// left to the source text that follows the match.
func rewriteSuffix(input, suffix, method, fixedArgs string) string {
	re := regexp.MustCompile(`(?i)\{([^{}|]+?)_` + suffix + `(?:\|([^}]*))?\}`)
	return re.ReplaceAllStringFunc(input, func(m string) string {
		sub := re.FindStringSubmatch(m)
		field, param := sub[1], sub[2]

		closing := "}"
		if strings.Count(param, "{") > strings.Count(param, "}") {
			param += "}"
			closing = ""
		}
		args := fixedArgs
		if param != "" {
			if args != "" {
				args += ", "
			}
			args += param
		}
		if args == "" {
			return "{" + field + ":" + method + closing
		}
		return "{" + field + ":" + method + "(" + args + ")" + closing
	})
}

// ConvertLegacyDynamicContent rewrites embedded legacy component markup
// (<img ... contentid="N" ...>, optionally with a data attribute) into the
// new dynamic-content div. With escaped set, the replacement is
// HTML-escaped for embedding inside JSON strings.
func ConvertLegacyDynamicContent(input string, escaped bool) string {
	if input == "" {
		return input
	}
	return imgRe.ReplaceAllStringFunc(input, func(tag string) string {
		sub := imgRe.FindStringSubmatch(tag)
		contentID := sub[1]

		var replacement string
		if data := dataRe.FindStringSubmatch(tag); data != nil {
			replacement = fmt.Sprintf(`<div class="dynamic-content" data="%s" component-id="%s"><h2>Component %s</h2></div>`,
				data[1], contentID, contentID)
		} else {
			replacement = fmt.Sprintf(`<div class="dynamic-content" component-id="%s"><h2>Component %s</h2></div>`,
				contentID, contentID)
		}
		if escaped {
			return html.EscapeString(replacement)
		}
		return replacement
	})
}
