package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"clan-tracker/internal/config"
	"clan-tracker/internal/database"
	"clan-tracker/internal/domain"
	"clan-tracker/internal/queue"
	"clan-tracker/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*httptest.Server, *sql.DB, *queue.Queues) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db, zerolog.Nop()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mini := miniredis.RunT(t)
	queues, err := queue.NewQueues(&config.Config{RedisAddr: mini.Addr()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create queues: %v", err)
	}
	t.Cleanup(queues.Close)

	nop := zerolog.Nop()
	srv := New(
		repository.NewPlayerRepository(db, nop),
		repository.NewKillRepository(db, nop),
		repository.NewReportRepository(db, nop),
		queues,
		nop,
	)

	mux := http.NewServeMux()
	srv.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, db, queues
}

func seedData(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	nop := zerolog.Nop()

	players := repository.NewPlayerRepository(db, nop)
	if err := players.Create(ctx, &domain.Player{MembershipID: "100", MembershipType: 3, Name: "Alice", JoinDate: time.Now()}); err != nil {
		t.Fatalf("seed player failed: %v", err)
	}
	player, err := players.GetByMembershipID(ctx, "100")
	if err != nil {
		t.Fatalf("load player failed: %v", err)
	}

	characters := repository.NewCharacterRepository(db, nop)
	if err := characters.Create(ctx, &domain.Character{PlayerID: player.ID, CharID: "char-1", ClassName: "Hunter"}); err != nil {
		t.Fatalf("seed character failed: %v", err)
	}
	character, err := characters.GetByCharID(ctx, "char-1")
	if err != nil {
		t.Fatalf("load character failed: %v", err)
	}

	weapons := repository.NewWeaponRepository(db, nop)
	weapon, err := weapons.Ensure(ctx, &domain.Weapon{WeaponID: 1, Name: "Sniper", DamageType: "kinetic", GunType: "Sniper Rifle"})
	if err != nil {
		t.Fatalf("seed weapon failed: %v", err)
	}

	kills := repository.NewKillRepository(db, nop)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := kills.InsertTx(ctx, tx, &domain.WeaponKillRecord{CharacterID: character.ID, WeaponID: weapon.ID, Kills: 6, MatchTime: time.Now()}); err != nil {
		t.Fatalf("seed kill failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestRosterEndpoint(t *testing.T) {
	ts, db, _ := newTestServer(t)
	seedData(t, db)

	var roster []map[string]any
	if status := getJSON(t, ts.URL+"/api/roster", &roster); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(roster) != 1 {
		t.Fatalf("roster size = %d, want 1", len(roster))
	}
	if roster[0]["membership_id"] != "100" || roster[0]["name"] != "Alice" {
		t.Errorf("roster entry = %+v", roster[0])
	}
}

func TestTopWeaponsEndpoint(t *testing.T) {
	ts, db, _ := newTestServer(t)
	seedData(t, db)

	var weapons []repository.WeaponKills
	if status := getJSON(t, ts.URL+"/api/weapons/top?days=7", &weapons); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(weapons) != 1 || weapons[0].Name != "Sniper" || weapons[0].TotalKills != 6 {
		t.Fatalf("weapons = %+v", weapons)
	}
}

func TestPlayerWeaponsEndpoint(t *testing.T) {
	ts, db, _ := newTestServer(t)
	seedData(t, db)

	var weapons []repository.WeaponKills
	if status := getJSON(t, ts.URL+"/api/player/100/weapons", &weapons); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(weapons) != 1 || weapons[0].TotalKills != 6 {
		t.Fatalf("weapons = %+v", weapons)
	}

	// Unknown player yields an empty list, not an error.
	if status := getJSON(t, ts.URL+"/api/player/999/weapons", &weapons); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(weapons) != 0 {
		t.Errorf("weapons for unknown player = %+v", weapons)
	}
}

func TestServiceInfoEndpoint(t *testing.T) {
	ts, db, queues := newTestServer(t)
	seedData(t, db)

	ctx := context.Background()
	if err := queue.PutJSON(ctx, queues.Matches, queue.ProcessingJob{MatchID: 1}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	var info struct {
		TotalKills    int64 `json:"total_kills"`
		StoredReports int64 `json:"stored_reports"`
		MatchQueue    int64 `json:"match_queue"`
	}
	if status := getJSON(t, ts.URL+"/api/service/info", &info); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if info.TotalKills != 6 {
		t.Errorf("total kills = %d, want 6", info.TotalKills)
	}
	if info.MatchQueue != 1 {
		t.Errorf("match queue = %d, want 1", info.MatchQueue)
	}
}

func TestDaysParam(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"7", 7},
		{"-3", 0},
		{"junk", 0},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/api/weapons/top?days="+tc.raw, nil)
		if got := days(r); got != tc.want {
			t.Errorf("days(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
