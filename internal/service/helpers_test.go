package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"clan-tracker/internal/bungie"
	"clan-tracker/internal/catalog"
	"clan-tracker/internal/config"
	"clan-tracker/internal/database"
	"clan-tracker/internal/domain"
	"clan-tracker/internal/repository"

	"github.com/rs/zerolog"
)

func newTestDB(t *testing.T) *sql.DB {
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
	return db
}

func seedPlayer(t *testing.T, db *sql.DB, membershipID, charID string) *domain.Character {
	t.Helper()
	ctx := context.Background()

	players := repository.NewPlayerRepository(db, zerolog.Nop())
	if err := players.Create(ctx, &domain.Player{
		MembershipID:   membershipID,
		MembershipType: 3,
		Name:           "member-" + membershipID,
	}); err != nil {
		t.Fatalf("failed to seed player: %v", err)
	}
	player, err := players.GetByMembershipID(ctx, membershipID)
	if err != nil {
		t.Fatalf("failed to load seeded player: %v", err)
	}

	characters := repository.NewCharacterRepository(db, zerolog.Nop())
	if err := characters.Create(ctx, &domain.Character{
		PlayerID:  player.ID,
		CharID:    charID,
		ClassName: "Hunter",
		Power:     1800,
	}); err != nil {
		t.Fatalf("failed to seed character: %v", err)
	}
	character, err := characters.GetByCharID(ctx, charID)
	if err != nil {
		t.Fatalf("failed to load seeded character: %v", err)
	}
	return character
}

func setWatermark(t *testing.T, db *sql.DB, charID string, watermark int64) {
	t.Helper()
	if _, err := db.Exec(`UPDATE character SET last_match_id = ? WHERE char_id = ?`, watermark, charID); err != nil {
		t.Fatalf("failed to set watermark: %v", err)
	}
}

// statsServer fakes the stats source behind the real HTTP client, counting
// requests so tests can assert what was (not) fetched.
type statsServer struct {
	server   *httptest.Server
	requests atomic.Int64
}

func newStatsServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*statsServer, *bungie.Client) {
	t.Helper()

	s := &statsServer{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(s.server.Close)

	cfg := &config.Config{BungieAPIKey: "test-key", BungieAPIURL: s.server.URL}
	return s, bungie.NewClient(cfg, zerolog.Nop())
}

func writeEnvelope(w http.ResponseWriter, errorCode int, payload any) {
	raw, _ := json.Marshal(payload)
	body := map[string]any{
		"Response":    json.RawMessage(raw),
		"ErrorCode":   errorCode,
		"ErrorStatus": "Status",
		"Message":     "",
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func activityList(instanceIDs ...int64) map[string]any {
	activities := make([]map[string]any, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		activities = append(activities, map[string]any{
			"period":          time.Now().UTC().Format(time.RFC3339),
			"activityDetails": map[string]any{"instanceId": fmt.Sprintf("%d", id), "mode": 5},
		})
	}
	return map[string]any{"activities": activities}
}

// newTestCatalog builds a manifest snapshot with one resolvable weapon and
// class so services can do real lookups.
func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	path := filepath.Join(t.TempDir(), "manifest.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to create snapshot: %v", err)
	}

	tables := []catalog.Table{
		catalog.TableInventoryItem,
		catalog.TableInventoryBucket,
		catalog.TableClass,
		catalog.TableActivity,
		catalog.TableActivityMode,
	}
	for _, table := range tables {
		if _, err := db.Exec("CREATE TABLE " + table.String() + " (id INTEGER PRIMARY KEY, json BLOB)"); err != nil {
			t.Fatalf("failed to create table %s: %v", table, err)
		}
	}

	seed := func(table catalog.Table, id int64, blob string) {
		t.Helper()
		if _, err := db.Exec("INSERT INTO "+table.String()+" (id, json) VALUES (?, ?)", id, blob); err != nil {
			t.Fatalf("failed to seed %s: %v", table, err)
		}
	}

	seed(catalog.TableInventoryItem, testWeaponHash, `{
		"displayProperties": {"name": "Izanagi's Burden"},
		"inventory": {"bucketTypeHash": 100},
		"itemTypeDisplayName": "Sniper Rifle"
	}`)
	seed(catalog.TableInventoryItem, catalog.NormalizeHash(testSignedWeaponHash), `{
		"displayProperties": {"name": "Thorn"},
		"inventory": {"bucketTypeHash": 100},
		"itemTypeDisplayName": "Hand Cannon"
	}`)
	seed(catalog.TableInventoryBucket, 100, `{"displayProperties": {"name": "Kinetic Weapons"}}`)
	seed(catalog.TableClass, catalog.NormalizeHash(testClassHash), `{"displayProperties": {"name": "Hunter"}}`)
	db.Close()

	cat, err := catalog.Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

const (
	testWeaponHash = int64(4242)
	testClassHash  = int64(671679327)

	// Raw manifest hash with the sign bit set; stored sign-normalized.
	testSignedWeaponHash = int64(3973202132)
)
