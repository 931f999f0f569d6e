package legacy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wiserhq/templates/internal/telemetry"
	"github.com/wiserhq/templates/internal/types"
)

// LegacyItem is one easy_items row joined to its oldest deployed template
// version (the lowest version ever marked test/accept/live). The conversion
// imports that snapshot, not the full history: the old system's history is
// not worth porting, a safe starting point is.
type LegacyItem struct {
	ID          int64
	ParentID    int64
	Name        string
	Path        string // ancestor path, e.g. /html/shop/
	IsDirectory bool

	Version         int
	Content         string
	MinifiedContent string

	ExternalFiles []string // filenames/urls from easy_templates.externalfiles
	CDNFiles      []string // filenames from the CDN template list

	URLRegex   string
	LoadAlways bool
}

// LegacyComponent is one easy_dynamiccontent row linked to a legacy item.
type LegacyComponent struct {
	ID          int64
	ItemID      int64
	Class       string // fully-qualified legacy class name
	Description string
	Settings    string // JSON
}

// Source reads the legacy schema. It is never written to.
type Source interface {
	// TablesExist reports whether the easy_* tables are present at all.
	TablesExist(ctx context.Context) (bool, error)
	Items(ctx context.Context) ([]*LegacyItem, error)
	ComponentsForItem(ctx context.Context, itemID int64) ([]*LegacyComponent, error)
}

// Destination writes the new schema.
type Destination interface {
	TemplateCount(ctx context.Context) (int, error)
	DynamicContentCount(ctx context.Context) (int, error)

	// RunInTransaction wraps the whole row-processing loop; fn returning
	// an error must leave the destination untouched.
	RunInTransaction(ctx context.Context, fn func(DestinationTx) error) error

	// EnsureRootDirectory upserts one root directory outside any
	// transaction. Must be idempotent.
	EnsureRootDirectory(ctx context.Context, name string, ordering int, actor string) error
}

// DestinationTx is the transactional write surface of a Destination.
type DestinationTx interface {
	UpsertTemplate(ctx context.Context, t *types.Template) error
	InsertDynamicContent(ctx context.Context, c *types.DynamicContent) error
	// LinkDynamicContent uses insert-ignore semantics: linking twice is
	// not an error.
	LinkDynamicContent(ctx context.Context, contentID, templateID int64) error
}

// rootDirectories is the fixed set of root-level directories in the new
// schema, with their display order. Legacy roots are renamed onto these;
// missing ones are synthesized after the conversion commits.
var rootDirectories = []struct {
	Name     string
	Ordering int
}{
	{"HTML", 1},
	{"JS", 2},
	{"SCSS", 3},
	{"CSS", 4},
	{"SQL", 5},
	{"SERVICES", 6},
	{"VIEWS", 7},
	{"ROUTINES", 8},
	{"TRIGGERS", 9},
}

// rootRenames maps legacy root directory names onto the new fixed names.
var rootRenames = map[string]string{
	"HTML":     "HTML",
	"SCRIPTS":  "JS",
	"JS":       "JS",
	"SCSS":     "SCSS",
	"CSS":      "CSS",
	"QUERY":    "SQL",
	"SQL":      "SQL",
	"AIS":      "SERVICES",
	"SERVICES": "SERVICES",
	"VIEWS":    "VIEWS",
	"ROUTINES": "ROUTINES",
	"TRIGGERS": "TRIGGERS",
}

// Converter is the one-shot legacy conversion job. It refuses to run when
// the destination already holds data, so a tenant database is converted at
// most once.
type Converter struct {
	source     Source
	dest       Destination
	cdnBaseURL string
	actor      string
}

// NewConverter wires a conversion job.
func NewConverter(source Source, dest Destination, cdnBaseURL, actor string) *Converter {
	return &Converter{source: source, dest: dest, cdnBaseURL: strings.TrimRight(cdnBaseURL, "/"), actor: actor}
}

// Run executes the conversion. Guard failures wrap types.ErrConflict;
// anything else is an unexpected failure with the whole run rolled back.
//
// Root-directory synthesis runs after the commit, outside the transaction.
// Doing it inside caused deadlocks and lock timeouts against the freshly
// written rows, so the job commits first and then repairs the roots. The
// synthesis is idempotent and retried with backoff; a crash between commit
// and synthesis can still leave roots missing until the repair runs again.
func (c *Converter) Run(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "legacy.Convert")
	defer span.End()

	exists, err := c.source.TablesExist(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: no legacy tables found, there is nothing to convert", types.ErrConflict)
	}
	if n, err := c.dest.TemplateCount(ctx); err != nil {
		return err
	} else if n > 0 {
		return fmt.Errorf("%w: the template table already contains %d rows; conversion only runs against an empty module", types.ErrConflict, n)
	}
	if n, err := c.dest.DynamicContentCount(ctx); err != nil {
		return err
	} else if n > 0 {
		return fmt.Errorf("%w: the dynamic content table already contains %d rows; conversion only runs against an empty module", types.ErrConflict, n)
	}

	items, err := c.source.Items(ctx)
	if err != nil {
		return err
	}

	var templatesConverted, componentsConverted int64
	err = c.dest.RunInTransaction(ctx, func(tx DestinationTx) error {
		for _, item := range items {
			converted := c.convertItem(item)
			if err := tx.UpsertTemplate(ctx, converted); err != nil {
				return fmt.Errorf("failed to convert legacy item %d (%s): %w", item.ID, item.Name, err)
			}
			templatesConverted++

			if converted.Type != types.TypeHTML {
				continue
			}
			components, err := c.source.ComponentsForItem(ctx, item.ID)
			if err != nil {
				return err
			}
			for _, component := range components {
				translated := TranslateComponentSettings(component.Class, component.Description, component.Settings)
				row := &types.DynamicContent{
					ID:        component.ID,
					Component: translated.Component,
					Mode:      translated.Mode,
					Title:     translated.Title,
					Settings:  translated.Settings,
					ChangedOn: time.Now().UTC(),
					ChangedBy: c.actor,
				}
				if err := tx.InsertDynamicContent(ctx, row); err != nil {
					return fmt.Errorf("failed to convert legacy component %d (%s): %w", component.ID, component.Class, err)
				}
				if err := tx.LinkDynamicContent(ctx, component.ID, item.ID); err != nil {
					return fmt.Errorf("failed to link component %d to template %d: %w", component.ID, item.ID, err)
				}
				componentsConverted++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	telemetry.CountConverted(ctx, "template", templatesConverted)
	telemetry.CountConverted(ctx, "dynamic_content", componentsConverted)

	return c.synthesizeRootDirectories(ctx)
}

// synthesizeRootDirectories upserts the nine fixed roots so the tree is
// complete even when the legacy data never had some of them. Runs outside
// the conversion transaction (see Run) with a bounded retry against
// transient lock errors.
func (c *Converter) synthesizeRootDirectories(ctx context.Context) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	for _, root := range rootDirectories {
		root := root
		err := backoff.Retry(func() error {
			return c.dest.EnsureRootDirectory(ctx, root.Name, root.Ordering, c.actor)
		}, policy)
		if err != nil {
			return fmt.Errorf("failed to synthesize root directory %q: %w", root.Name, err)
		}
		policy.Reset()
	}
	return nil
}

// convertItem maps one legacy item onto a new template row.
func (c *Converter) convertItem(item *LegacyItem) *types.Template {
	t := &types.Template{
		TemplateID:    item.ID,
		ParentID:      item.ParentID,
		Name:          item.Name,
		Version:       item.Version,
		EditorValue:   item.Content,
		ExternalFiles: c.mergeExternalFiles(item),
		URLRegex:      item.URLRegex,
		LoadAlways:    item.LoadAlways,
		ChangedOn:     time.Now().UTC(),
		ChangedBy:     c.actor,
	}
	if t.Version < 1 {
		t.Version = 1
	}
	t.Type = InferTypeFromPath(item.Path, item.IsDirectory)

	if item.ParentID == 0 && item.IsDirectory {
		if renamed, ok := rootRenames[strings.ToUpper(item.Name)]; ok {
			t.Name = renamed
			t.Ordering = rootOrdering(renamed)
		}
	}

	if t.Type == types.TypeHTML || t.Type == types.TypeQuery {
		t.EditorValue = ConvertLegacyReplacements(t.EditorValue)
		if t.Type == types.TypeHTML {
			t.EditorValue = ConvertLegacyDynamicContent(t.EditorValue, false)
		}
		if item.MinifiedContent != "" {
			minified := ConvertLegacyReplacements(item.MinifiedContent)
			if t.Type == types.TypeHTML {
				minified = ConvertLegacyDynamicContent(minified, false)
			}
			t.MinifiedValue = &minified
		}
	} else if item.MinifiedContent != "" {
		minified := item.MinifiedContent
		t.MinifiedValue = &minified
	}

	// The imported snapshot is the deployed one; point the whole ladder
	// at it so the tenant renders the same content before and after.
	if !item.IsDirectory {
		t.PublishedEnvironment = types.EnvDevelopment | types.EnvTest | types.EnvAcceptance | types.EnvLive
	}
	return t
}

// mergeExternalFiles merges the two legacy sources of external includes
// into one semicolon-joined string. CDN filenames become absolute CDN URLs;
// entries that already look absolute stay as-is.
func (c *Converter) mergeExternalFiles(item *LegacyItem) string {
	seen := make(map[string]bool)
	var merged []string
	add := func(file string) {
		file = strings.TrimSpace(file)
		if file == "" || seen[file] {
			return
		}
		seen[file] = true
		merged = append(merged, file)
	}
	for _, file := range item.ExternalFiles {
		add(file)
	}
	for _, file := range item.CDNFiles {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		if !strings.Contains(file, "://") && c.cdnBaseURL != "" {
			file = c.cdnBaseURL + "/" + strings.TrimLeft(file, "/")
		}
		add(file)
	}
	return strings.Join(merged, ";")
}

// InferTypeFromPath derives the template type from the item's ancestor
// path. The legacy schema had no type column; the directory a template
// lived under is the only signal.
func InferTypeFromPath(path string, isDirectory bool) types.TemplateType {
	if isDirectory {
		return types.TypeDirectory
	}
	lower := strings.ToLower(path)
	if !strings.HasPrefix(lower, "/") {
		lower = "/" + lower
	}
	if !strings.HasSuffix(lower, "/") {
		lower += "/"
	}
	switch {
	case strings.Contains(lower, "/html/"):
		return types.TypeHTML
	case strings.Contains(lower, "/scss/"):
		return types.TypeSCSS
	case strings.Contains(lower, "/css/"):
		return types.TypeCSS
	case strings.Contains(lower, "/scripts/"):
		return types.TypeJS
	case strings.Contains(lower, "/query/"):
		return types.TypeQuery
	case strings.Contains(lower, "/ais/"):
		return types.TypeAIS
	case strings.Contains(lower, "/views/"):
		return types.TypeView
	case strings.Contains(lower, "/routines/"):
		return types.TypeRoutine
	case strings.Contains(lower, "/triggers/"):
		return types.TypeTrigger
	}
	return types.TypeUnknown
}

func rootOrdering(name string) int {
	for _, root := range rootDirectories {
		if root.Name == name {
			return root.Ordering
		}
	}
	return 0
}
