package legacy

import "testing"

func TestConvertLegacyReplacements(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"no legacy constructs", "<p>{title}</p>", "<p>{title}</p>"},
		{"seo suffix", "{title_seo}", "{title:Seo}"},
		{"htmlencode suffix", "{body_htmlencode}", "{body:HtmlEncode}"},
		{"sha512 suffix", "{password_sha512}", "{password:Sha512}"},
		{"url escape pair", "{q_urldataescape} {q_urldataunescape}", "{q:UrlEncode} {q:UrlDecode}"},
		{"striphtml", "{summary_striphtml}", "{summary:StripHtml}"},
		{"currency aliases", "{a_valuta} {b_price} {c_currency}", "{a:Currency(true)} {b:Currency(true)} {c:Currency(true)}"},
		{"currency sup", "{total_valutasup}", "{total:CurrencySup}"},
		{"jsonsafe", "{payload_jsonsafe}", "{payload:JsonSafe}"},
		{"stripstyle", "{html_stripstyle}", "{html:StripInlineStyle}"},
		{"base64", "{blob_base64}", "{blob:Base64}"},
		{"currency with culture parameter", "{price_currency|{culture}}", "{price:Currency(true, {culture})}"},
		{"decrypt", "{name_decrypt}", "{name:Decrypt(false)}"},
		{"encrypt", "{name_encrypt}", "{name:Encrypt(false)}"},
		{"normal decrypt", "{name_normaldecrypt}", "{name:DecryptNormal(false)}"},
		{"decrypt with date", "{name_decrypt_withdate}", "{name:Decrypt(true)}"},
		{"decrypt with date and minutes", "{name_decrypt_withdate|30}", "{name:Decrypt(true, 30)}"},
		{"case insensitive", "{Title_SEO}", "{Title:Seo}"},
		{"like both wildcards", "SELECT * FROM t WHERE name LIKE '%{search}%'", "SELECT * FROM t WHERE name LIKE CONCAT('%', '{search}', '%')"},
		{"like prefix wildcard only", "LIKE '{search}%'", "LIKE CONCAT('{search}', '%')"},
		{"like bracketed token", "LIKE '%[{search}]%'", "LIKE CONCAT('%', '[{search}]', '%')"},
		{"like without wildcards untouched", "LIKE '{search}'", "LIKE '{search}'"},
		{"items raw", "<ul>{items}</ul>", "<ul>{items:Raw}</ul>"},
		{"mixed body", "{title_seo} LIKE '%{q}%' {items}", "{title:Seo} LIKE CONCAT('%', '{q}', '%') {items:Raw}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ConvertLegacyReplacements(tc.in); got != tc.want {
				t.Fatalf("ConvertLegacyReplacements(%q)\n got: %q\nwant: %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestConvertLegacyReplacementsIdempotent(t *testing.T) {
	in := "{title_seo} {name_decrypt_withdate|30} LIKE '%{q}%'"
	once := ConvertLegacyReplacements(in)
	twice := ConvertLegacyReplacements(once)
	if once != twice {
		t.Fatalf("second run changed the output:\n once:  %q\n twice: %q", once, twice)
	}
}

func TestConvertLegacyDynamicContent(t *testing.T) {
	in := `<p>before</p><img src="x.png" contentid="42" /><p>after</p>`
	want := `<p>before</p><div class="dynamic-content" component-id="42"><h2>Component 42</h2></div><p>after</p>`
	if got := ConvertLegacyDynamicContent(in, false); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConvertLegacyDynamicContentWithData(t *testing.T) {
	in := `<img contentid="7" data="eyJmb28iOjF9">`
	want := `<div class="dynamic-content" data="eyJmb28iOjF9" component-id="7"><h2>Component 7</h2></div>`
	if got := ConvertLegacyDynamicContent(in, false); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConvertLegacyDynamicContentEscaped(t *testing.T) {
	got := ConvertLegacyDynamicContent(`<img contentid="7">`, true)
	want := "&lt;div class=&#34;dynamic-content&#34; component-id=&#34;7&#34;&gt;&lt;h2&gt;Component 7&lt;/h2&gt;&lt;/div&gt;"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConvertLegacyDynamicContentLeavesPlainImages(t *testing.T) {
	in := `<img src="logo.png" alt="logo">`
	if got := ConvertLegacyDynamicContent(in, false); got != in {
		t.Fatalf("plain image was rewritten: %q", got)
	}
}
