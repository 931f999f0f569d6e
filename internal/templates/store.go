// Package templates implements the template version store: append-only
// version rows over the wiser_template table, the tree/search projections
// and the publish-state bookkeeping the promoter builds on.
package templates

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wiserhq/templates/internal/storage"
	"github.com/wiserhq/templates/internal/types"
)

// Store is the interface satisfied by *SQLStore. The promoter, the branch
// deployer and the orchestration service depend on this interface so tests
// can substitute the in-memory implementation.
type Store interface {
	// Version CRUD
	CreateTemplate(ctx context.Context, t *types.Template, actor string) (int64, error)
	CreateVersion(ctx context.Context, t *types.Template, actor string) (int, error)
	Latest(ctx context.Context, templateID int64) (*types.Template, error)
	Get(ctx context.Context, templateID int64, version int) (*types.Template, error)
	LatestVersionNumber(ctx context.Context, templateID int64) (int, error)

	// InsertVersionRow inserts a row preserving its template id and
	// version. Branch deployment uses it to copy rows across databases;
	// duplicate keys surface to the caller untranslated.
	InsertVersionRow(ctx context.Context, t *types.Template, actor string) error

	// Tree and search
	Metadata(ctx context.Context, templateID int64) (*types.TemplateMeta, error)
	ListTree(ctx context.Context, parentID int64) ([]*types.TemplateMeta, error)
	Search(ctx context.Context, needle string) ([]*types.TemplateMeta, error)
	Move(ctx context.Context, templateID, newParentID int64, ordering int, actor string) error
	Rename(ctx context.Context, templateID int64, newName, actor string) error
	SoftDelete(ctx context.Context, templateID int64, actor string) error

	// Publish bookkeeping
	PublishedState(ctx context.Context, templateID int64) (*types.PublishedEnvironments, error)
	MoveEnvironment(ctx context.Context, templateID int64, version int, env types.Environment) error
	AppendPublishLog(ctx context.Context, entry *types.PublishLogEntry) error

	// RunInTransaction runs fn against a store bound to one database
	// transaction; fn returning an error rolls everything back.
	RunInTransaction(ctx context.Context, fn func(Store) error) error
}

// SQLStore is the MySQL implementation of Store.
type SQLStore struct {
	gw storage.Gateway
}

// NewSQLStore wraps a gateway. The same constructor serves the main database
// and branch databases; only the gateway differs.
func NewSQLStore(gw storage.Gateway) *SQLStore {
	return &SQLStore{gw: gw}
}

// Gateway exposes the underlying gateway for collaborators that need raw
// access (dbsync, legacy conversion).
func (s *SQLStore) Gateway() storage.Gateway { return s.gw }

// CreateTemplate inserts version 1 of a brand-new template and returns the
// allocated template id.
func (s *SQLStore) CreateTemplate(ctx context.Context, t *types.Template, actor string) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.RunInTransaction(ctx, func(tx Store) error {
		txs := tx.(*SQLStore)
		if err := txs.gw.QueryRowContext(ctx, query("next_template_id")).Scan(&id); err != nil {
			return fmt.Errorf("failed to allocate template id: %w", err)
		}
		t.TemplateID = id
		t.Version = 1
		return txs.insertVersion(ctx, t, actor)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CreateVersion appends the next version for t.TemplateID and returns the
// new version number. Version numbers are allocated as max+1 inside the
// transaction, so they are strictly increasing with no gaps.
func (s *SQLStore) CreateVersion(ctx context.Context, t *types.Template, actor string) (int, error) {
	if t.TemplateID <= 0 {
		return 0, fmt.Errorf("template id is required")
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}
	var version int
	err := s.RunInTransaction(ctx, func(tx Store) error {
		txs := tx.(*SQLStore)
		latest, err := txs.LatestVersionNumber(ctx, t.TemplateID)
		if err != nil {
			return err
		}
		t.Version = latest + 1
		version = t.Version
		return txs.insertVersion(ctx, t, actor)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQLStore) insertVersion(ctx context.Context, t *types.Template, actor string) error {
	now := time.Now().UTC()
	t.ChangedOn = now
	t.ChangedBy = actor
	_, err := s.gw.ExecContext(ctx, query("insert_version"),
		t.TemplateID, t.ParentID, t.Name, string(t.Type), t.Version,
		t.EditorValue, t.MinifiedValue, int(t.PublishedEnvironment), t.URLRegex, t.LoadAlways,
		t.ExternalFiles, string(t.RoutineType), t.RoutineParameters, t.RoutineReturnType,
		string(t.TriggerTiming), string(t.TriggerEvent), t.TriggerTableName,
		t.Ordering, now, actor, t.Removed)
	if err != nil {
		return fmt.Errorf("failed to insert template version: %w", err)
	}
	return nil
}

// InsertVersionRow inserts t exactly as given (template id and version
// preserved).
func (s *SQLStore) InsertVersionRow(ctx context.Context, t *types.Template, actor string) error {
	if t.TemplateID <= 0 || t.Version <= 0 {
		return fmt.Errorf("template id and version are required")
	}
	return s.insertVersion(ctx, t, actor)
}

// LatestVersionNumber returns max(version) for the template, 0 when none
// exist.
func (s *SQLStore) LatestVersionNumber(ctx context.Context, templateID int64) (int, error) {
	var v int
	if err := s.gw.QueryRowContext(ctx, query("latest_version"), templateID).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get latest version: %w", err)
	}
	return v, nil
}

// Latest returns the newest non-removed version row.
func (s *SQLStore) Latest(ctx context.Context, templateID int64) (*types.Template, error) {
	return s.scanOne(s.gw.QueryRowContext(ctx, query("get_latest"), templateID))
}

// Get returns one specific version row.
func (s *SQLStore) Get(ctx context.Context, templateID int64, version int) (*types.Template, error) {
	return s.scanOne(s.gw.QueryRowContext(ctx, query("get_version"), templateID, version))
}

func (s *SQLStore) scanOne(row *sql.Row) (*types.Template, error) {
	t := &types.Template{}
	var (
		typ, routineType, triggerTiming, triggerEvent string
		minified, externalFiles, routineParams        sql.NullString
		published                                     int
	)
	err := row.Scan(&t.TemplateID, &t.ParentID, &t.Name, &typ, &t.Version,
		&t.EditorValue, &minified, &published, &t.URLRegex, &t.LoadAlways,
		&externalFiles, &routineType, &routineParams, &t.RoutineReturnType,
		&triggerTiming, &triggerEvent, &t.TriggerTableName,
		&t.Ordering, &t.ChangedOn, &t.ChangedBy, &t.Removed)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	t.Type = types.TemplateType(typ)
	t.PublishedEnvironment = types.Environment(published)
	if minified.Valid {
		v := minified.String
		t.MinifiedValue = &v
	}
	t.ExternalFiles = externalFiles.String
	t.RoutineType = types.RoutineType(routineType)
	t.RoutineParameters = routineParams.String
	t.TriggerTiming = types.TriggerTiming(triggerTiming)
	t.TriggerEvent = types.TriggerEvent(triggerEvent)
	return t, nil
}

// Metadata returns the latest-version projection without body payloads.
func (s *SQLStore) Metadata(ctx context.Context, templateID int64) (*types.TemplateMeta, error) {
	m := &types.TemplateMeta{}
	var typ string
	err := s.gw.QueryRowContext(ctx, query("get_metadata"), templateID).Scan(
		&m.TemplateID, &m.ParentID, &m.Name, &typ, &m.LatestVersion,
		&m.Ordering, &m.ChangedOn, &m.ChangedBy)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template metadata: %w", err)
	}
	m.Type = types.TemplateType(typ)
	return m, nil
}

// ListTree returns the direct children of parentID (latest versions only),
// ordered for display.
func (s *SQLStore) ListTree(ctx context.Context, parentID int64) ([]*types.TemplateMeta, error) {
	rows, err := s.gw.QueryContext(ctx, query("list_tree"), parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*types.TemplateMeta
	for rows.Next() {
		m := &types.TemplateMeta{}
		var typ string
		if err := rows.Scan(&m.TemplateID, &m.ParentID, &m.Name, &typ, &m.LatestVersion,
			&m.Ordering, &m.ChangedOn, &m.ChangedBy, &m.HasChildren); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		m.Type = types.TemplateType(typ)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Search matches the needle against template names and bodies of latest
// versions.
func (s *SQLStore) Search(ctx context.Context, needle string) ([]*types.TemplateMeta, error) {
	rows, err := s.gw.QueryContext(ctx, query("search"), needle, needle)
	if err != nil {
		return nil, fmt.Errorf("failed to search templates: %w", err)
	}
	defer rows.Close()

	var out []*types.TemplateMeta
	for rows.Next() {
		m := &types.TemplateMeta{}
		var typ string
		if err := rows.Scan(&m.TemplateID, &m.ParentID, &m.Name, &typ, &m.LatestVersion,
			&m.Ordering, &m.ChangedOn, &m.ChangedBy); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		m.Type = types.TemplateType(typ)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Move reparents a template. The update touches all version rows so the
// tree position is consistent regardless of which version is read.
func (s *SQLStore) Move(ctx context.Context, templateID, newParentID int64, ordering int, actor string) error {
	_, err := s.gw.ExecContext(ctx, query("move"), newParentID, ordering, time.Now().UTC(), actor, templateID)
	if err != nil {
		return fmt.Errorf("failed to move template: %w", err)
	}
	return nil
}

// Rename renames a template across all its versions.
func (s *SQLStore) Rename(ctx context.Context, templateID int64, newName, actor string) error {
	if newName == "" {
		return fmt.Errorf("template name is required")
	}
	_, err := s.gw.ExecContext(ctx, query("rename"), newName, time.Now().UTC(), actor, templateID)
	if err != nil {
		return fmt.Errorf("failed to rename template: %w", err)
	}
	return nil
}

// SoftDelete marks all versions of a template removed. Rows stay behind for
// history.
func (s *SQLStore) SoftDelete(ctx context.Context, templateID int64, actor string) error {
	_, err := s.gw.ExecContext(ctx, query("soft_delete"), time.Now().UTC(), actor, templateID)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

// PublishedState derives the per-environment mapping from the version rows'
// environment bitmasks.
func (s *SQLStore) PublishedState(ctx context.Context, templateID int64) (*types.PublishedEnvironments, error) {
	rows, err := s.gw.QueryContext(ctx, query("published_state"), templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to read published state: %w", err)
	}
	defer rows.Close()

	state := &types.PublishedEnvironments{}
	for rows.Next() {
		var version, mask int
		if err := rows.Scan(&version, &mask); err != nil {
			return nil, fmt.Errorf("failed to scan published state: %w", err)
		}
		state.VersionList = append(state.VersionList, version)
		for _, env := range types.AllEnvironments {
			if types.Environment(mask)&env != 0 {
				state.SetVersion(env, version)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(state.VersionList) == 0 {
		return nil, storage.ErrNotFound
	}
	return state, nil
}

// MoveEnvironment points env at the given version: the bit is cleared on
// whatever row held it and set on the target row. Other environment bits
// are untouched.
func (s *SQLStore) MoveEnvironment(ctx context.Context, templateID int64, version int, env types.Environment) error {
	if _, err := s.gw.ExecContext(ctx, query("clear_environment_bit"), int(env), templateID, int(env)); err != nil {
		return fmt.Errorf("failed to clear environment bit: %w", err)
	}
	res, err := s.gw.ExecContext(ctx, query("set_environment_bit"), int(env), templateID, version)
	if err != nil {
		return fmt.Errorf("failed to set environment bit: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AppendPublishLog inserts one immutable audit row.
func (s *SQLStore) AppendPublishLog(ctx context.Context, e *types.PublishLogEntry) error {
	_, err := s.gw.ExecContext(ctx, query("insert_publish_log"),
		e.TemplateID, e.OldLive, e.NewLive, e.OldAcceptance, e.NewAcceptance,
		e.OldTest, e.NewTest, e.OldDevelopment, e.NewDevelopment,
		e.ChangedOn, e.ChangedBy)
	if err != nil {
		return fmt.Errorf("failed to append publish log: %w", err)
	}
	return nil
}

// RunInTransaction runs fn against a transaction-bound store. Nested calls
// reuse the surrounding transaction.
func (s *SQLStore) RunInTransaction(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.gw.(*txGateway); ok {
		return fn(s)
	}
	tx, err := s.gw.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // No-op after successful commit

	txStore := &SQLStore{gw: &txGateway{Tx: tx, database: s.gw.Database()}}
	if err := fn(txStore); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txGateway adapts *sql.Tx to the Gateway interface so the same store code
// runs inside and outside a transaction.
type txGateway struct {
	*sql.Tx
	database string
}

func (t *txGateway) Database() string { return t.database }

func (t *txGateway) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return nil, fmt.Errorf("already inside a transaction")
}
