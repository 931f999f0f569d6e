package legacy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wiserhq/templates/internal/types"
)

type fakeSource struct {
	exists     bool
	items      []*LegacyItem
	components map[int64][]*LegacyComponent
}

func (f *fakeSource) TablesExist(ctx context.Context) (bool, error) { return f.exists, nil }
func (f *fakeSource) Items(ctx context.Context) ([]*LegacyItem, error) {
	return f.items, nil
}
func (f *fakeSource) ComponentsForItem(ctx context.Context, itemID int64) ([]*LegacyComponent, error) {
	return f.components[itemID], nil
}

type fakeDestination struct {
	templateCount int
	contentCount  int

	templates map[int64]*types.Template
	content   map[int64]*types.DynamicContent
	links     map[string]bool
	roots     []string

	failOnTemplate int64 // UpsertTemplate fails for this id
	rootFailures   int   // EnsureRootDirectory fails this many times first
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		templates: make(map[int64]*types.Template),
		content:   make(map[int64]*types.DynamicContent),
		links:     make(map[string]bool),
	}
}

func (f *fakeDestination) TemplateCount(ctx context.Context) (int, error) {
	return f.templateCount, nil
}
func (f *fakeDestination) DynamicContentCount(ctx context.Context) (int, error) {
	return f.contentCount, nil
}

func (f *fakeDestination) RunInTransaction(ctx context.Context, fn func(DestinationTx) error) error {
	staged := &stagedTx{dest: f}
	if err := fn(staged); err != nil {
		return err
	}
	for _, t := range staged.templates {
		f.templates[t.TemplateID] = t
	}
	for _, c := range staged.content {
		f.content[c.ID] = c
	}
	for _, l := range staged.links {
		f.links[l] = true
	}
	return nil
}

func (f *fakeDestination) EnsureRootDirectory(ctx context.Context, name string, ordering int, actor string) error {
	if f.rootFailures > 0 {
		f.rootFailures--
		return fmt.Errorf("lock wait timeout")
	}
	for _, existing := range f.roots {
		if existing == name {
			return nil
		}
	}
	f.roots = append(f.roots, name)
	return nil
}

// stagedTx buffers writes so a failed transaction leaves the destination
// untouched, like a real rollback.
type stagedTx struct {
	dest      *fakeDestination
	templates []*types.Template
	content   []*types.DynamicContent
	links     []string
}

func (s *stagedTx) UpsertTemplate(ctx context.Context, t *types.Template) error {
	if s.dest.failOnTemplate != 0 && t.TemplateID == s.dest.failOnTemplate {
		return fmt.Errorf("forced failure for template %d", t.TemplateID)
	}
	cp := *t
	s.templates = append(s.templates, &cp)
	return nil
}

func (s *stagedTx) InsertDynamicContent(ctx context.Context, c *types.DynamicContent) error {
	cp := *c
	s.content = append(s.content, &cp)
	return nil
}

func (s *stagedTx) LinkDynamicContent(ctx context.Context, contentID, templateID int64) error {
	s.links = append(s.links, fmt.Sprintf("%d->%d", contentID, templateID))
	return nil
}

func legacyFixture() *fakeSource {
	return &fakeSource{
		exists: true,
		items: []*LegacyItem{
			{ID: 1, ParentID: 0, Name: "html", IsDirectory: true, Path: "/html/"},
			{ID: 2, ParentID: 0, Name: "scripts", IsDirectory: true, Path: "/scripts/"},
			{ID: 3, ParentID: 1, Name: "homepage", Path: "/html/homepage/", Version: 4,
				Content:       `<h1>{title_seo}</h1><img contentid="42">`,
				ExternalFiles: []string{"https://foo.example/lib.js"},
				CDNFiles:      []string{"shared.css"}},
			{ID: 4, ParentID: 2, Name: "app", Path: "/scripts/app/", Version: 2, Content: "console.log(1)"},
		},
		components: map[int64][]*LegacyComponent{
			3: {{ID: 42, ItemID: 3, Class: "JuiceControlLibrary.SimpleMenu", Description: "Menu",
				Settings: `{"QueryId":"7"}`}},
		},
	}
}

func TestConverterRun(t *testing.T) {
	ctx := context.Background()
	dest := newFakeDestination()
	conv := NewConverter(legacyFixture(), dest, "https://cdn.example", "converter")

	if err := conv.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	home := dest.templates[3]
	if home == nil {
		t.Fatalf("homepage was not converted")
	}
	if home.Type != types.TypeHTML {
		t.Fatalf("homepage type = %v", home.Type)
	}
	if !strings.Contains(home.EditorValue, "{title:Seo}") {
		t.Fatalf("legacy syntax not translated: %q", home.EditorValue)
	}
	if !strings.Contains(home.EditorValue, `component-id="42"`) {
		t.Fatalf("embedded component not rewritten: %q", home.EditorValue)
	}
	if home.ExternalFiles != "https://foo.example/lib.js;https://cdn.example/shared.css" {
		t.Fatalf("external files = %q", home.ExternalFiles)
	}
	wantLadder := types.EnvDevelopment | types.EnvTest | types.EnvAcceptance | types.EnvLive
	if home.PublishedEnvironment != wantLadder {
		t.Fatalf("published environment = %v, want full ladder", home.PublishedEnvironment)
	}

	// Root rename: scripts -> JS.
	if js := dest.templates[2]; js == nil || js.Name != "JS" || js.Type != types.TypeDirectory {
		t.Fatalf("scripts root not renamed: %+v", js)
	}

	// Component imported and linked.
	if c := dest.content[42]; c == nil || c.Component != "Repeater" {
		t.Fatalf("component not converted: %+v", dest.content[42])
	}
	if !dest.links["42->3"] {
		t.Fatalf("component 42 not linked to template 3")
	}

	// All nine roots synthesized post-commit.
	if len(dest.roots) != len(rootDirectories) {
		t.Fatalf("synthesized %d roots, want %d: %v", len(dest.roots), len(rootDirectories), dest.roots)
	}
}

func TestConverterRefusesNonEmptyDestination(t *testing.T) {
	ctx := context.Background()
	dest := newFakeDestination()
	dest.templateCount = 10

	err := NewConverter(legacyFixture(), dest, "", "converter").Run(ctx)
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestConverterRefusesMissingLegacyTables(t *testing.T) {
	ctx := context.Background()
	err := NewConverter(&fakeSource{exists: false}, newFakeDestination(), "", "converter").Run(ctx)
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestConverterRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	dest := newFakeDestination()
	dest.failOnTemplate = 4

	err := NewConverter(legacyFixture(), dest, "", "converter").Run(ctx)
	if err == nil {
		t.Fatalf("Run succeeded despite forced failure")
	}
	if len(dest.templates) != 0 || len(dest.content) != 0 {
		t.Fatalf("partial conversion left behind: %d templates, %d content rows",
			len(dest.templates), len(dest.content))
	}
	if len(dest.roots) != 0 {
		t.Fatalf("roots synthesized despite rollback: %v", dest.roots)
	}
}

func TestConverterRetriesRootSynthesis(t *testing.T) {
	ctx := context.Background()
	dest := newFakeDestination()
	dest.rootFailures = 2

	if err := NewConverter(legacyFixture(), dest, "", "converter").Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(dest.roots) != len(rootDirectories) {
		t.Fatalf("synthesized %d roots, want %d", len(dest.roots), len(rootDirectories))
	}
}

func TestInferTypeFromPath(t *testing.T) {
	cases := []struct {
		path string
		dir  bool
		want types.TemplateType
	}{
		{"/html/shop/", false, types.TypeHTML},
		{"/scss/base/", false, types.TypeSCSS},
		{"/css/", false, types.TypeCSS},
		{"/scripts/", false, types.TypeJS},
		{"/query/orders/", false, types.TypeQuery},
		{"/ais/import/", false, types.TypeAIS},
		{"/views/", false, types.TypeView},
		{"/routines/", false, types.TypeRoutine},
		{"/triggers/", false, types.TypeTrigger},
		{"/anything/", true, types.TypeDirectory},
		{"/misc/", false, types.TypeUnknown},
		{"html/page", false, types.TypeHTML}, // missing slashes normalized
	}
	for _, tc := range cases {
		if got := InferTypeFromPath(tc.path, tc.dir); got != tc.want {
			t.Errorf("InferTypeFromPath(%q, %v) = %v, want %v", tc.path, tc.dir, got, tc.want)
		}
	}
}

func TestMergeExternalFilesDeduplicates(t *testing.T) {
	conv := NewConverter(nil, nil, "https://cdn.example/", "converter")
	item := &LegacyItem{
		ExternalFiles: []string{"https://cdn.example/a.js", " ", "b.css"},
		CDNFiles:      []string{"a.js", "b.css", "https://other.example/c.js"},
	}
	got := conv.mergeExternalFiles(item)
	want := "https://cdn.example/a.js;b.css;https://cdn.example/b.css;https://other.example/c.js"
	if got != want {
		t.Fatalf("merged = %q, want %q", got, want)
	}
}
