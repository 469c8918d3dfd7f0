package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/tempo/internal/store"
	"github.com/MrWong99/tempo/internal/store/postgres"
)

// testDSN skips the test unless TEMPO_TEST_POSTGRES_DSN points at a
// disposable database.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEMPO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEMPO_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	for _, tbl := range []string{"playlist_tracks", "playlists", "favorites", "guild_settings", "user_grants"} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+tbl+" CASCADE"); err != nil {
			t.Fatalf("drop %s: %v", tbl, err)
		}
	}

	st, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func TestStore_Grants(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Grant(ctx, "u1", "paid", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := st.Grant(ctx, "u2", "vote", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	if ok, err := st.HasPaidAccess(ctx, "u1"); err != nil || !ok {
		t.Errorf("HasPaidAccess(u1) = %v, %v", ok, err)
	}
	if ok, err := st.HasVoteAccess(ctx, "u2"); err != nil || ok {
		t.Errorf("HasVoteAccess(u2, expired) = %v, %v", ok, err)
	}
}

func TestStore_KeepAlive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ka, err := st.KeepAlive(ctx, "g1")
	if err != nil || ka.Enabled {
		t.Fatalf("KeepAlive(unknown) = %+v, %v", ka, err)
	}
	if err := st.SetKeepAlive(ctx, "g1", true); err != nil {
		t.Fatalf("SetKeepAlive: %v", err)
	}
	ka, err = st.KeepAlive(ctx, "g1")
	if err != nil || !ka.Enabled || ka.PremiumActive {
		t.Errorf("KeepAlive = %+v, %v; want enabled without premium", ka, err)
	}
}

func TestStore_Library(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ref := store.TrackRef{Title: "Song", Author: "Band", URI: "https://example.com/s", LengthMs: 1000, Source: "youtube"}

	if err := st.AddFavorite(ctx, "u1", ref); err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}
	favs, err := st.Favorites(ctx, "u1")
	if err != nil || len(favs) != 1 || favs[0].Title != "Song" {
		t.Errorf("Favorites = %+v, %v", favs, err)
	}

	if _, err := st.Playlist(ctx, "u1", store.LikedPlaylist); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Playlist(missing) err = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := st.AddToPlaylist(ctx, "u1", store.LikedPlaylist, ref); err != nil {
			t.Fatalf("AddToPlaylist: %v", err)
		}
	}
	pl, err := st.Playlist(ctx, "u1", store.LikedPlaylist)
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	if pl.ID == "" || len(pl.Tracks) != 2 {
		t.Errorf("Playlist = %+v", pl)
	}
}
