// Package memory provides an in-memory implementation of templates.Store.
// It backs unit tests and local experiments; production code always runs
// against the MySQL store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wiserhq/templates/internal/storage"
	"github.com/wiserhq/templates/internal/templates"
	"github.com/wiserhq/templates/internal/types"
)

// MemoryStore keeps version rows in a map keyed by template id.
type MemoryStore struct {
	mu         sync.Mutex
	rows       map[int64][]*types.Template // sorted by version
	publishLog []*types.PublishLogEntry
	nextID     int64
}

var _ templates.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64][]*types.Template), nextID: 1}
}

// PublishLog returns a copy of the appended audit entries, oldest first.
func (m *MemoryStore) PublishLog() []*types.PublishLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.PublishLogEntry, len(m.publishLog))
	copy(out, m.publishLog)
	return out
}

func (m *MemoryStore) CreateTemplate(ctx context.Context, t *types.Template, actor string) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t.TemplateID = m.nextID
	m.nextID++
	t.Version = 1
	t.ChangedOn = time.Now().UTC()
	t.ChangedBy = actor
	cp := *t
	m.rows[t.TemplateID] = []*types.Template{&cp}
	return t.TemplateID, nil
}

func (m *MemoryStore) CreateVersion(ctx context.Context, t *types.Template, actor string) (int, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.rows[t.TemplateID]
	latest := 0
	if n := len(versions); n > 0 {
		latest = versions[n-1].Version
	}
	t.Version = latest + 1
	t.ChangedOn = time.Now().UTC()
	t.ChangedBy = actor
	cp := *t
	m.rows[t.TemplateID] = append(versions, &cp)
	return t.Version, nil
}

func (m *MemoryStore) InsertVersionRow(ctx context.Context, t *types.Template, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows[t.TemplateID] {
		if row.Version == t.Version {
			return storage.ErrDuplicateKey
		}
	}
	cp := *t
	cp.ChangedOn = time.Now().UTC()
	cp.ChangedBy = actor
	m.rows[t.TemplateID] = append(m.rows[t.TemplateID], &cp)
	sort.Slice(m.rows[t.TemplateID], func(i, j int) bool {
		return m.rows[t.TemplateID][i].Version < m.rows[t.TemplateID][j].Version
	})
	if t.TemplateID >= m.nextID {
		m.nextID = t.TemplateID + 1
	}
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context, templateID int64) (*types.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.rows[templateID]
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].Removed {
			cp := *versions[i]
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *MemoryStore) Get(ctx context.Context, templateID int64, version int) (*types.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows[templateID] {
		if row.Version == version {
			cp := *row
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *MemoryStore) LatestVersionNumber(ctx context.Context, templateID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.rows[templateID]
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[len(versions)-1].Version, nil
}

func (m *MemoryStore) Metadata(ctx context.Context, templateID int64) (*types.TemplateMeta, error) {
	t, err := m.Latest(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return &types.TemplateMeta{
		TemplateID:    t.TemplateID,
		ParentID:      t.ParentID,
		Name:          t.Name,
		Type:          t.Type,
		LatestVersion: t.Version,
		Ordering:      t.Ordering,
		ChangedOn:     t.ChangedOn,
		ChangedBy:     t.ChangedBy,
	}, nil
}

func (m *MemoryStore) ListTree(ctx context.Context, parentID int64) ([]*types.TemplateMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.TemplateMeta
	for id, versions := range m.rows {
		latest := versions[len(versions)-1]
		if latest.Removed || latest.ParentID != parentID {
			continue
		}
		meta := &types.TemplateMeta{
			TemplateID:    id,
			ParentID:      latest.ParentID,
			Name:          latest.Name,
			Type:          latest.Type,
			LatestVersion: latest.Version,
			Ordering:      latest.Ordering,
			ChangedOn:     latest.ChangedOn,
			ChangedBy:     latest.ChangedBy,
		}
		for _, other := range m.rows {
			if o := other[len(other)-1]; o.ParentID == id && !o.Removed {
				meta.HasChildren = true
				break
			}
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ordering != out[j].Ordering {
			return out[i].Ordering < out[j].Ordering
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *MemoryStore) Search(ctx context.Context, needle string) ([]*types.TemplateMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle = strings.ToLower(needle)
	var out []*types.TemplateMeta
	for id, versions := range m.rows {
		latest := versions[len(versions)-1]
		if latest.Removed {
			continue
		}
		if strings.Contains(strings.ToLower(latest.Name), needle) ||
			strings.Contains(strings.ToLower(latest.EditorValue), needle) {
			out = append(out, &types.TemplateMeta{
				TemplateID:    id,
				ParentID:      latest.ParentID,
				Name:          latest.Name,
				Type:          latest.Type,
				LatestVersion: latest.Version,
				Ordering:      latest.Ordering,
				ChangedOn:     latest.ChangedOn,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) Move(ctx context.Context, templateID, newParentID int64, ordering int, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.rows[templateID]
	if len(versions) == 0 {
		return storage.ErrNotFound
	}
	for _, row := range versions {
		row.ParentID = newParentID
		row.Ordering = ordering
		row.ChangedOn = time.Now().UTC()
		row.ChangedBy = actor
	}
	return nil
}

func (m *MemoryStore) Rename(ctx context.Context, templateID int64, newName, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.rows[templateID]
	if len(versions) == 0 {
		return storage.ErrNotFound
	}
	for _, row := range versions {
		row.Name = newName
		row.ChangedBy = actor
	}
	return nil
}

func (m *MemoryStore) SoftDelete(ctx context.Context, templateID int64, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.rows[templateID]
	if len(versions) == 0 {
		return storage.ErrNotFound
	}
	for _, row := range versions {
		row.Removed = true
		row.ChangedBy = actor
	}
	return nil
}

func (m *MemoryStore) PublishedState(ctx context.Context, templateID int64) (*types.PublishedEnvironments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.rows[templateID]
	if len(versions) == 0 {
		return nil, storage.ErrNotFound
	}
	state := &types.PublishedEnvironments{}
	for _, row := range versions {
		if row.Removed {
			continue
		}
		state.VersionList = append(state.VersionList, row.Version)
		for _, env := range types.AllEnvironments {
			if row.PublishedEnvironment&env != 0 {
				state.SetVersion(env, row.Version)
			}
		}
	}
	return state, nil
}

func (m *MemoryStore) MoveEnvironment(ctx context.Context, templateID int64, version int, env types.Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.rows[templateID]
	var target *types.Template
	for _, row := range versions {
		if row.Version == version {
			target = row
		}
	}
	if target == nil {
		return storage.ErrNotFound
	}
	for _, row := range versions {
		row.PublishedEnvironment &^= env
	}
	target.PublishedEnvironment |= env
	return nil
}

func (m *MemoryStore) AppendPublishLog(ctx context.Context, e *types.PublishLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = int64(len(m.publishLog) + 1)
	m.publishLog = append(m.publishLog, &cp)
	return nil
}

// RunInTransaction snapshots the store, runs fn and restores the snapshot
// when fn fails. Good enough for the atomicity the tests assert on.
func (m *MemoryStore) RunInTransaction(ctx context.Context, fn func(templates.Store) error) error {
	m.mu.Lock()
	snapshot := make(map[int64][]*types.Template, len(m.rows))
	for id, versions := range m.rows {
		cp := make([]*types.Template, len(versions))
		for i, row := range versions {
			r := *row
			cp[i] = &r
		}
		snapshot[id] = cp
	}
	logLen := len(m.publishLog)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.rows = snapshot
		m.publishLog = m.publishLog[:logLen]
		m.mu.Unlock()
		return err
	}
	return nil
}
