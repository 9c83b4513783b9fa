package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hazyhaar/templio/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	s, err := New(db)
	if err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return s
}

func seed(t *testing.T, s *Store, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := s.InsertTemplate(context.Background(), &Template{
			ID:         fmt.Sprintf("%s-%02d", userID, i),
			UserID:     userID,
			Title:      fmt.Sprintf("T%d", i),
			HTMLCode:   "<p>x</p>",
			IsFavorite: i%3 == 0,
			CreatedAt:  int64(1000 + i),
			UpdatedAt:  int64(1000 + i),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
}

func TestTemplateCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seed(t, s, "alice", 1)

	got, err := s.GetTemplate(ctx, "alice", "alice-00")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Title != "T0" || !got.IsFavorite {
		t.Errorf("got %+v", got)
	}

	// WHY: ownership is part of every key; another user sees nothing.
	if other, err := s.GetTemplate(ctx, "bob", "alice-00"); err != nil || other != nil {
		t.Fatalf("cross-user get: %v %v", other, err)
	}
	if ok, _ := s.DeleteTemplate(ctx, "bob", "alice-00"); ok {
		t.Fatal("cross-user delete succeeded")
	}
	if ok, _ := s.UpdateTitle(ctx, "bob", "alice-00", "pwned", 1); ok {
		t.Fatal("cross-user rename succeeded")
	}

	prev := got.UpdatedAt
	got.Title, got.HTMLCode, got.UpdatedAt = "New", "<p>y</p>", 2000
	if err := s.UpdateTemplate(ctx, got, prev); err != nil {
		t.Fatalf("update: %v", err)
	}
	fav, found, err := s.ToggleFavorite(ctx, "alice", "alice-00", 3000)
	if err != nil || !found || fav {
		t.Fatalf("toggle: fav=%v found=%v err=%v", fav, found, err)
	}
	if _, found, _ := s.ToggleFavorite(ctx, "alice", "missing", 1); found {
		t.Fatal("toggle on missing row reported found")
	}

	got, _ = s.GetTemplate(ctx, "alice", "alice-00")
	if got.Title != "New" || got.HTMLCode != "<p>y</p>" || got.IsFavorite || got.UpdatedAt != 3000 {
		t.Errorf("after update: %+v", got)
	}

	if ok, err := s.DeleteTemplate(ctx, "alice", "alice-00"); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if got, _ := s.GetTemplate(ctx, "alice", "alice-00"); got != nil {
		t.Fatal("row survived delete")
	}
}

func TestUpdateTemplate_Conflict(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seed(t, s, "alice", 1)

	// Two editors read the same version.
	a, _ := s.GetTemplate(ctx, "alice", "alice-00")
	b, _ := s.GetTemplate(ctx, "alice", "alice-00")

	a.Title, a.UpdatedAt = "from a", 2000
	if err := s.UpdateTemplate(ctx, a, 1000); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// WHAT: the second write, based on the stale read, is refused.
	// WHY: accepting it would silently undo the first edit.
	b.Title, b.UpdatedAt = "from b", 2001
	if err := s.UpdateTemplate(ctx, b, 1000); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale write: got %v, want ErrConflict", err)
	}
	if got, _ := s.GetTemplate(ctx, "alice", "alice-00"); got.Title != "from a" {
		t.Fatalf("title = %q", got.Title)
	}

	b.UserID = "bob"
	if err := s.UpdateTemplate(ctx, b, 2000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user write: got %v, want ErrNotFound", err)
	}
}

func TestUpdateTitle_BumpsVersionWithinSameMillisecond(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seed(t, s, "alice", 1)

	// A rename stamped with the row's own timestamp must still move the
	// version, or a concurrent full update could not see it.
	if ok, _ := s.UpdateTitle(ctx, "alice", "alice-00", "renamed", 1000); !ok {
		t.Fatal("rename failed")
	}
	got, _ := s.GetTemplate(ctx, "alice", "alice-00")
	if got.UpdatedAt != 1001 {
		t.Fatalf("updated_at = %d, want 1001", got.UpdatedAt)
	}
}

func TestListTemplates_SortAndPage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seed(t, s, "alice", 8)
	seed(t, s, "bob", 2)

	newest, err := s.ListTemplates(ctx, "alice", ListOptions{Sort: SortNewest, Limit: 6})
	if err != nil {
		t.Fatal(err)
	}
	if len(newest) != 6 || newest[0].ID != "alice-07" {
		t.Fatalf("newest: len=%d first=%s", len(newest), newest[0].ID)
	}
	rest, _ := s.ListTemplates(ctx, "alice", ListOptions{Sort: SortNewest, Limit: 6, Offset: 6})
	if len(rest) != 2 || rest[1].ID != "alice-00" {
		t.Fatalf("page 2: %d", len(rest))
	}

	oldest, _ := s.ListTemplates(ctx, "alice", ListOptions{Sort: SortOldest})
	if oldest[0].ID != "alice-00" || len(oldest) != 8 {
		t.Fatalf("oldest: first=%s len=%d", oldest[0].ID, len(oldest))
	}

	favs, _ := s.ListTemplates(ctx, "alice", ListOptions{Sort: SortFavorites})
	var ids []string
	for _, f := range favs {
		ids = append(ids, f.ID)
	}
	if strings.Join(ids, ",") != "alice-06,alice-03,alice-00" {
		t.Fatalf("favorites: %v", ids)
	}

	if n, _ := s.CountTemplates(ctx, "alice", false); n != 8 {
		t.Errorf("count = %d", n)
	}
	if n, _ := s.CountTemplates(ctx, "alice", true); n != 3 {
		t.Errorf("favorite count = %d", n)
	}
}

func TestScreenshotSizeCheck(t *testing.T) {
	s := testStore(t)
	err := s.InsertTemplate(context.Background(), &Template{
		ID:         "big",
		UserID:     "alice",
		Title:      "x",
		HTMLCode:   "x",
		Screenshot: strings.Repeat("a", MaxScreenshotBytes+1),
		CreatedAt:  1,
		UpdatedAt:  1,
	})
	if err == nil {
		t.Fatal("oversized screenshot accepted")
	}
}
