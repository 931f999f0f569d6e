package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wiserhq/templates/internal/storage"
	"github.com/wiserhq/templates/internal/types"
)

// SQLSource reads the easy_* schema.
type SQLSource struct {
	gw storage.Gateway
}

// NewSQLSource wraps the tenant database gateway.
func NewSQLSource(gw storage.Gateway) *SQLSource {
	return &SQLSource{gw: gw}
}

// TablesExist checks for the easy_items table; tenants that never ran the
// old system have nothing to convert.
func (s *SQLSource) TablesExist(ctx context.Context) (bool, error) {
	var n int
	err := s.gw.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = 'easy_items'",
		s.gw.Database()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check for legacy tables: %w", err)
	}
	return n > 0, nil
}

// itemsQuery joins every legacy item to its oldest deployed template
// version (the lowest version ever marked test, acceptance or live). The
// recursive part computes each item's ancestor path, which is the only
// signal for the new template type.
const itemsQuery = `
WITH RECURSIVE item_path (id, parent_id, name, is_folder, path) AS (
	SELECT id, parent_id, name, is_folder, CONCAT('/', LOWER(name), '/')
	FROM easy_items WHERE parent_id = 0
	UNION ALL
	SELECT i.id, i.parent_id, i.name, i.is_folder, CONCAT(p.path, LOWER(i.name), '/')
	FROM easy_items i JOIN item_path p ON i.parent_id = p.id
)
SELECT p.id, p.parent_id, p.name, p.is_folder, p.path,
	COALESCE(t.version, 0),
	COALESCE(t.html, ''),
	COALESCE(t.html_minified, ''),
	COALESCE(t.externalfiles, ''),
	COALESCE(t.cdnfiles, ''),
	COALESCE(t.urlregex, ''),
	COALESCE(t.loadalways, 0)
FROM item_path p
LEFT JOIN easy_templates t
	ON t.itemid = p.id
	AND t.version = (
		SELECT MIN(d.version) FROM easy_templates d
		WHERE d.itemid = p.id AND (d.istest = 1 OR d.isacceptance = 1 OR d.islive = 1)
	)
ORDER BY p.path`

// Items returns every legacy item with its deployed snapshot.
func (s *SQLSource) Items(ctx context.Context) ([]*LegacyItem, error) {
	rows, err := s.gw.QueryContext(ctx, itemsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy items: %w", err)
	}
	defer rows.Close()

	var out []*LegacyItem
	for rows.Next() {
		item := &LegacyItem{}
		var isFolder, loadAlways int
		var externalFiles, cdnFiles string
		if err := rows.Scan(&item.ID, &item.ParentID, &item.Name, &isFolder, &item.Path,
			&item.Version, &item.Content, &item.MinifiedContent,
			&externalFiles, &cdnFiles, &item.URLRegex, &loadAlways); err != nil {
			return nil, fmt.Errorf("failed to scan legacy item: %w", err)
		}
		item.IsDirectory = isFolder == 1
		item.LoadAlways = loadAlways == 1
		item.ExternalFiles = splitFileList(externalFiles)
		item.CDNFiles = splitFileList(cdnFiles)
		out = append(out, item)
	}
	return out, rows.Err()
}

// ComponentsForItem returns the legacy dynamic-content rows linked to one
// item.
func (s *SQLSource) ComponentsForItem(ctx context.Context, itemID int64) ([]*LegacyComponent, error) {
	rows, err := s.gw.QueryContext(ctx,
		`SELECT id, itemid, COALESCE(controltype, ''), COALESCE(visibledescription, ''), COALESCE(filledvariables, '')
		FROM easy_dynamiccontent WHERE itemid = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy components: %w", err)
	}
	defer rows.Close()

	var out []*LegacyComponent
	for rows.Next() {
		component := &LegacyComponent{}
		if err := rows.Scan(&component.ID, &component.ItemID, &component.Class,
			&component.Description, &component.Settings); err != nil {
			return nil, fmt.Errorf("failed to scan legacy component: %w", err)
		}
		out = append(out, component)
	}
	return out, rows.Err()
}

// splitFileList splits the legacy semicolon/newline separated file lists.
func splitFileList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '\n' || r == '\r'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// SQLDestination writes the wiser_* schema.
type SQLDestination struct {
	gw storage.Gateway
}

// NewSQLDestination wraps the tenant database gateway.
func NewSQLDestination(gw storage.Gateway) *SQLDestination {
	return &SQLDestination{gw: gw}
}

func (d *SQLDestination) TemplateCount(ctx context.Context) (int, error) {
	var n int
	if err := d.gw.QueryRowContext(ctx, "SELECT COUNT(*) FROM wiser_template").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return n, nil
}

func (d *SQLDestination) DynamicContentCount(ctx context.Context) (int, error) {
	var n int
	if err := d.gw.QueryRowContext(ctx, "SELECT COUNT(*) FROM wiser_dynamic_content").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dynamic content: %w", err)
	}
	return n, nil
}

// RunInTransaction wraps fn in one database transaction.
func (d *SQLDestination) RunInTransaction(ctx context.Context, fn func(DestinationTx) error) error {
	tx, err := d.gw.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin conversion transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // No-op after successful commit

	if err := fn(&sqlDestinationTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversion: %w", err)
	}
	return nil
}

// EnsureRootDirectory upserts one of the fixed root directories. Runs
// post-commit; must stay idempotent so a crashed conversion can be
// repaired by running again.
func (d *SQLDestination) EnsureRootDirectory(ctx context.Context, name string, ordering int, actor string) error {
	var templateID int64
	err := d.gw.QueryRowContext(ctx,
		`SELECT template_id FROM wiser_template
		WHERE parent_id = 0 AND template_name = ? AND template_type = ? AND removed = 0
		LIMIT 1`, name, string(types.TypeDirectory)).Scan(&templateID)
	switch {
	case err == sql.ErrNoRows:
		var nextID int64
		if err := d.gw.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(template_id), 0) + 1 FROM wiser_template").Scan(&nextID); err != nil {
			return err
		}
		_, err = d.gw.ExecContext(ctx,
			`INSERT INTO wiser_template
			(template_id, parent_id, template_name, template_type, version, ordering, changed_on, changed_by, published_environment)
			VALUES (?, 0, ?, ?, 1, ?, ?, ?, 0)`,
			nextID, name, string(types.TypeDirectory), ordering, time.Now().UTC(), actor)
		return err
	case err != nil:
		return err
	default:
		_, err = d.gw.ExecContext(ctx,
			"UPDATE wiser_template SET ordering = ? WHERE template_id = ?", ordering, templateID)
		return err
	}
}

type sqlDestinationTx struct {
	tx *sql.Tx
}

func (t *sqlDestinationTx) UpsertTemplate(ctx context.Context, tpl *types.Template) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO wiser_template
		(template_id, parent_id, template_name, template_type, version,
		 template_data, template_data_minified, published_environment, url_regex, load_always,
		 external_files, ordering, changed_on, changed_by, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			parent_id = VALUES(parent_id),
			template_name = VALUES(template_name),
			template_type = VALUES(template_type),
			template_data = VALUES(template_data),
			template_data_minified = VALUES(template_data_minified),
			published_environment = VALUES(published_environment),
			url_regex = VALUES(url_regex),
			load_always = VALUES(load_always),
			external_files = VALUES(external_files),
			ordering = VALUES(ordering)`,
		tpl.TemplateID, tpl.ParentID, tpl.Name, string(tpl.Type), tpl.Version,
		tpl.EditorValue, tpl.MinifiedValue, int(tpl.PublishedEnvironment), tpl.URLRegex, tpl.LoadAlways,
		tpl.ExternalFiles, tpl.Ordering, tpl.ChangedOn, tpl.ChangedBy, tpl.Removed)
	return err
}

func (t *sqlDestinationTx) InsertDynamicContent(ctx context.Context, c *types.DynamicContent) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO wiser_dynamic_content (id, component, component_mode, title, settings, changed_on, changed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			component = VALUES(component),
			component_mode = VALUES(component_mode),
			title = VALUES(title),
			settings = VALUES(settings)`,
		c.ID, c.Component, c.Mode, c.Title, c.Settings, c.ChangedOn, c.ChangedBy)
	return err
}

func (t *sqlDestinationTx) LinkDynamicContent(ctx context.Context, contentID, templateID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT IGNORE INTO wiser_template_dynamic_content (content_id, destination_template_id, added_on)
		VALUES (?, ?, ?)`, contentID, templateID, time.Now().UTC())
	return err
}
