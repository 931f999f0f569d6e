package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/wiserhq/templates/internal/templates/memory"
	"github.com/wiserhq/templates/internal/types"
)

// seed creates a template with n versions and returns its id.
func seed(t *testing.T, store *memory.MemoryStore, n int) int64 {
	t.Helper()
	ctx := context.Background()
	tpl := &types.Template{Name: "main-layout", Type: types.TypeHTML, EditorValue: "<html>v1</html>"}
	id, err := store.CreateTemplate(ctx, tpl, "tester")
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	for v := 2; v <= n; v++ {
		next := &types.Template{TemplateID: id, Name: "main-layout", Type: types.TypeHTML, EditorValue: "<html>v</html>"}
		if _, err := store.CreateVersion(ctx, next, "tester"); err != nil {
			t.Fatalf("CreateVersion %d: %v", v, err)
		}
	}
	return id
}

func TestPublishMovesEnvironmentBit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	id := seed(t, store, 2)
	p := NewPromoter(store)

	res, err := p.Publish(ctx, id, 1, types.EnvTest, "tester", Options{})
	if err != nil {
		t.Fatalf("Publish v1: %v", err)
	}
	if res.State.Test != 1 {
		t.Fatalf("test environment = %d, want 1", res.State.Test)
	}

	res, err = p.Publish(ctx, id, 2, types.EnvTest, "tester", Options{})
	if err != nil {
		t.Fatalf("Publish v2: %v", err)
	}
	if res.State.Test != 2 {
		t.Fatalf("test environment = %d, want 2", res.State.Test)
	}

	// The bit must be gone from v1, not just set on v2.
	v1, err := store.Get(ctx, id, 1)
	if err != nil {
		t.Fatalf("Get v1: %v", err)
	}
	if v1.PublishedEnvironment&types.EnvTest != 0 {
		t.Fatalf("v1 still carries the test bit: %v", v1.PublishedEnvironment)
	}
}

func TestPublishDoesNotCascade(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	id := seed(t, store, 2)
	p := NewPromoter(store)

	if _, err := p.Publish(ctx, id, 1, types.EnvAcceptance, "tester", Options{}); err != nil {
		t.Fatalf("Publish acceptance: %v", err)
	}
	res, err := p.Publish(ctx, id, 2, types.EnvTest, "tester", Options{})
	if err != nil {
		t.Fatalf("Publish test: %v", err)
	}
	if res.State.Acceptance != 1 {
		t.Fatalf("acceptance moved to %d, want 1", res.State.Acceptance)
	}
	if res.State.Test != 2 {
		t.Fatalf("test = %d, want 2", res.State.Test)
	}
}

func TestPublishLiveCreatesProtectiveVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	id := seed(t, store, 2)
	p := NewPromoter(store)

	res, err := p.Publish(ctx, id, 2, types.EnvLive, "tester", Options{})
	if err != nil {
		t.Fatalf("Publish live: %v", err)
	}
	if res.NewVersion != 3 {
		t.Fatalf("NewVersion = %d, want 3", res.NewVersion)
	}

	draft, err := store.Get(ctx, id, 3)
	if err != nil {
		t.Fatalf("Get draft: %v", err)
	}
	if draft.PublishedEnvironment != types.EnvNone {
		t.Fatalf("draft published environment = %v, want none", draft.PublishedEnvironment)
	}
	live, _ := store.Get(ctx, id, 2)
	if draft.EditorValue != live.EditorValue {
		t.Fatalf("draft content differs from the published version")
	}
}

func TestPublishLiveSkipsProtectiveCopyWhenNotLatest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	id := seed(t, store, 3)
	p := NewPromoter(store)

	// Publishing an older version to live must not copy it over the tip.
	res, err := p.Publish(ctx, id, 1, types.EnvLive, "tester", Options{})
	if err != nil {
		t.Fatalf("Publish live: %v", err)
	}
	if res.NewVersion != 0 {
		t.Fatalf("NewVersion = %d, want 0", res.NewVersion)
	}
	if n, _ := store.LatestVersionNumber(ctx, id); n != 3 {
		t.Fatalf("latest version = %d, want 3", n)
	}
}

func TestPublishInBranchSkipsProtectiveCopy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	id := seed(t, store, 1)
	p := NewPromoter(store)

	res, err := p.Publish(ctx, id, 1, types.EnvLive, "tester", Options{InBranch: true})
	if err != nil {
		t.Fatalf("Publish live in branch: %v", err)
	}
	if res.NewVersion != 0 {
		t.Fatalf("NewVersion = %d, want 0 inside a branch", res.NewVersion)
	}
	if n, _ := store.LatestVersionNumber(ctx, id); n != 1 {
		t.Fatalf("latest version = %d, want 1", n)
	}
}

func TestPublishAppendsLogEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	id := seed(t, store, 2)
	p := NewPromoter(store)

	if _, err := p.Publish(ctx, id, 1, types.EnvTest, "alice", Options{}); err != nil {
		t.Fatalf("Publish v1: %v", err)
	}
	if _, err := p.Publish(ctx, id, 2, types.EnvTest, "bob", Options{}); err != nil {
		t.Fatalf("Publish v2: %v", err)
	}

	log := store.PublishLog()
	if len(log) != 2 {
		t.Fatalf("publish log has %d entries, want 2", len(log))
	}
	last := log[1]
	if last.OldTest != 1 || last.NewTest != 2 {
		t.Fatalf("log test transition = %d -> %d, want 1 -> 2", last.OldTest, last.NewTest)
	}
	if last.OldLive != last.NewLive {
		t.Fatalf("live changed in a test-only publish: %d -> %d", last.OldLive, last.NewLive)
	}
	if last.ChangedBy != "bob" {
		t.Fatalf("ChangedBy = %q, want bob", last.ChangedBy)
	}
}

func TestPublishValidation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	id := seed(t, store, 1)
	p := NewPromoter(store)

	cases := []struct {
		name       string
		templateID int64
		version    int
		env        types.Environment
	}{
		{"zero template id", 0, 1, types.EnvTest},
		{"zero version", id, 0, types.EnvTest},
		{"unknown version", id, 99, types.EnvTest},
		{"invalid environment", id, 1, types.Environment(64)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Publish(ctx, tc.templateID, tc.version, tc.env, "tester", Options{})
			if !errors.Is(err, types.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestPublishRemovedVersionRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()
	id := seed(t, store, 1)
	if err := store.SoftDelete(ctx, id, "tester"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	_, err := NewPromoter(store).Publish(ctx, id, 1, types.EnvLive, "tester", Options{})
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
