package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wiserhq/templates/internal/storage"
	"github.com/wiserhq/templates/internal/templates"
	"github.com/wiserhq/templates/internal/types"
)

func TestCreateTemplateAndVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	id, err := store.CreateTemplate(ctx, &types.Template{Name: "layout", Type: types.TypeHTML}, "alice")
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if id != 1 {
		t.Fatalf("id = %d", id)
	}

	for want := 2; want <= 4; want++ {
		v, err := store.CreateVersion(ctx, &types.Template{TemplateID: id, Name: "layout", Type: types.TypeHTML}, "alice")
		if err != nil {
			t.Fatalf("CreateVersion: %v", err)
		}
		if v != want {
			t.Fatalf("version = %d, want %d", v, want)
		}
	}

	latest, err := store.Latest(ctx, id)
	if err != nil || latest.Version != 4 {
		t.Fatalf("Latest = %+v, %v", latest, err)
	}
	if latest.ChangedBy != "alice" {
		t.Fatalf("ChangedBy = %q", latest.ChangedBy)
	}
}

func TestInsertVersionRowDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	row := &types.Template{TemplateID: 9, Version: 2, Name: "x", Type: types.TypeCSS}
	if err := store.InsertVersionRow(ctx, row, "alice"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := store.InsertVersionRow(ctx, row, "alice")
	if !storage.IsDuplicateKey(err) {
		t.Fatalf("err = %v, want duplicate key", err)
	}
	// Preserved id must not be reused for new templates.
	id, err := store.CreateTemplate(ctx, &types.Template{Name: "y", Type: types.TypeCSS}, "alice")
	if err != nil || id != 10 {
		t.Fatalf("next id = %d, %v", id, err)
	}
}

func TestSoftDeleteHidesTemplate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, _ := store.CreateTemplate(ctx, &types.Template{Name: "old", Type: types.TypeHTML}, "alice")

	if err := store.SoftDelete(ctx, id, "alice"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := store.Latest(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("removed template still returned")
	}
	// The version row itself survives for history.
	if _, err := store.Get(ctx, id, 1); err != nil {
		t.Fatalf("history row gone: %v", err)
	}
}

func TestListTreeAndSearch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	dir, _ := store.CreateTemplate(ctx, &types.Template{Name: "HTML", Type: types.TypeDirectory, Ordering: 1}, "alice")
	store.CreateTemplate(ctx, &types.Template{Name: "homepage", Type: types.TypeHTML, ParentID: dir, EditorValue: "<h1>Welcome</h1>"}, "alice")
	store.CreateTemplate(ctx, &types.Template{Name: "checkout", Type: types.TypeHTML, ParentID: dir}, "alice")

	roots, err := store.ListTree(ctx, 0)
	if err != nil || len(roots) != 1 {
		t.Fatalf("roots = %v, %v", roots, err)
	}
	if !roots[0].HasChildren {
		t.Fatalf("root HasChildren = false")
	}

	children, _ := store.ListTree(ctx, dir)
	if len(children) != 2 {
		t.Fatalf("children = %d", len(children))
	}
	// Equal ordering sorts by name.
	if children[0].Name != "checkout" || children[1].Name != "homepage" {
		t.Fatalf("order: %s, %s", children[0].Name, children[1].Name)
	}

	hits, _ := store.Search(ctx, "welcome")
	if len(hits) != 1 || hits[0].Name != "homepage" {
		t.Fatalf("search hits = %v", hits)
	}
}

func TestRunInTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, _ := store.CreateTemplate(ctx, &types.Template{Name: "layout", Type: types.TypeHTML}, "alice")

	err := store.RunInTransaction(ctx, func(tx templates.Store) error {
		if _, err := tx.CreateVersion(ctx, &types.Template{TemplateID: id, Name: "layout", Type: types.TypeHTML}, "alice"); err != nil {
			return err
		}
		if err := tx.AppendPublishLog(ctx, &types.PublishLogEntry{TemplateID: id}); err != nil {
			return err
		}
		return fmt.Errorf("forced failure")
	})
	if err == nil {
		t.Fatalf("transaction succeeded despite forced failure")
	}
	if n, _ := store.LatestVersionNumber(ctx, id); n != 1 {
		t.Fatalf("version created despite rollback: %d", n)
	}
	if len(store.PublishLog()) != 0 {
		t.Fatalf("publish log entry survived rollback")
	}
}
