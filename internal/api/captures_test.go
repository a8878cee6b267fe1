package api

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/catalog"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-indi/migrations"
)

// testCatalog opens a migrated SQLite catalog holding three captures.
func testCatalog(t *testing.T) (*catalog.SQLiteRepository, []*catalog.Capture) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	repo := catalog.NewSQLiteRepository(db.DB)
	base := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	captures := []*catalog.Capture{
		{Device: "CCD Simulator", Chip: "primary", Path: "/data/M42_Light_001.fits", Format: ".fits", Size: 2048, CapturedAt: base},
		{Device: "CCD Simulator", Chip: "guide", Path: "/data/guide_001.fits", Format: ".fits", Size: 512, CapturedAt: base.Add(time.Minute)},
		{Device: "CCD Simulator", Chip: "primary", Path: "/data/M42_Light_002.fits", Format: ".fits", Error: "disk full", CapturedAt: base.Add(2 * time.Minute)},
	}
	for _, c := range captures {
		if err := repo.Create(context.Background(), c); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}
	return repo, captures
}

func TestCaptures_Disabled(t *testing.T) {
	srv, _ := testServer(t)

	w := serve(srv, http.MethodGet, "/api/v1/captures", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestListCaptures(t *testing.T) {
	repo, _ := testCatalog(t)
	srv, _ := testServerWithDeps(t, Deps{Captures: repo})

	tests := []struct {
		name  string
		query url.Values
		want  int
	}{
		{"all", url.Values{}, 3},
		{"by chip", url.Values{"chip": {"guide"}}, 1},
		{"failed", url.Values{"failed": {"true"}}, 1},
		{"succeeded", url.Values{"failed": {"false"}}, 2},
		{"since", url.Values{"since": {"2026-03-14T21:01:00Z"}}, 2},
		{"other device", url.Values{"device": {"Guide Simulator"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, http.MethodGet, "/api/v1/captures?"+tt.query.Encode(), "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
			}
			resp := decodeBody(t, w)
			if resp["total"] != float64(tt.want) {
				t.Errorf("total = %v, want %d", resp["total"], tt.want)
			}
		})
	}
}

func TestListCaptures_Pagination(t *testing.T) {
	repo, _ := testCatalog(t)
	srv, _ := testServerWithDeps(t, Deps{Captures: repo})

	w := serve(srv, http.MethodGet, "/api/v1/captures?limit=1&offset=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody(t, w)
	items, _ := resp["captures"].([]any)
	if len(items) != 1 {
		t.Errorf("captures = %d items, want 1", len(items))
	}
	if resp["total"] != float64(3) {
		t.Errorf("total = %v, want 3", resp["total"])
	}
}

func TestListCaptures_BadQuery(t *testing.T) {
	repo, _ := testCatalog(t)
	srv, _ := testServerWithDeps(t, Deps{Captures: repo})

	for _, q := range []string{"since=yesterday", "failed=maybe", "limit=-1", "offset=x"} {
		w := serve(srv, http.MethodGet, "/api/v1/captures?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestGetCapture(t *testing.T) {
	repo, captures := testCatalog(t)
	srv, _ := testServerWithDeps(t, Deps{Captures: repo})

	w := serve(srv, http.MethodGet, "/api/v1/captures/"+captures[0].ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["path"] != captures[0].Path {
		t.Errorf("path = %v, want %s", resp["path"], captures[0].Path)
	}

	w = serve(srv, http.MethodGet, "/api/v1/captures/does-not-exist", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing capture status = %d, want 404", w.Code)
	}
}
