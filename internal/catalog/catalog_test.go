package catalog

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// newSnapshot builds a minimal manifest snapshot file with the definition
// tables the catalog queries.
func newSnapshot(t *testing.T, rows map[Table]map[int64]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "manifest.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to create snapshot: %v", err)
	}
	defer db.Close()

	tables := []Table{TableInventoryItem, TableInventoryBucket, TableClass, TableActivity, TableActivityMode}
	for _, table := range tables {
		if _, err := db.Exec("CREATE TABLE " + table.String() + " (id INTEGER PRIMARY KEY, json BLOB)"); err != nil {
			t.Fatalf("failed to create table %s: %v", table, err)
		}
		for id, blob := range rows[table] {
			if _, err := db.Exec("INSERT INTO "+table.String()+" (id, json) VALUES (?, ?)", id, blob); err != nil {
				t.Fatalf("failed to seed %s: %v", table, err)
			}
		}
	}
	return path
}

func TestOpenRejectsMissingSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE manifest (id INTEGER)"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	db.Close()

	_, err = Open(path, zerolog.Nop())
	if err == nil {
		t.Fatal("expected open to fail on snapshot without definition tables")
	}
	// The table check succeeded and found nothing; there is no underlying
	// error to wrap into the diagnostic.
	if strings.Contains(err.Error(), "%!w") {
		t.Errorf("diagnostic contains a mangled verb: %v", err)
	}
}

func TestWeaponLookup(t *testing.T) {
	const (
		weaponHash = int64(3211806999)
		bucketHash = int64(1498876634)
	)

	path := newSnapshot(t, map[Table]map[int64]string{
		TableInventoryItem: {
			NormalizeHash(weaponHash): `{
				"displayProperties": {"name": "Izanagi's Burden"},
				"inventory": {"bucketTypeHash": 1498876634},
				"itemTypeDisplayName": "Sniper Rifle"
			}`,
		},
		TableInventoryBucket: {
			NormalizeHash(bucketHash): `{"displayProperties": {"name": "Kinetic Weapons"}}`,
		},
	})

	cat, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	// The unsigned form from a match report must resolve to the signed
	// row the snapshot indexes by.
	def, err := cat.Weapon(weaponHash)
	if err != nil {
		t.Fatalf("weapon lookup failed: %v", err)
	}
	if def.Hash != NormalizeHash(weaponHash) {
		t.Errorf("hash = %d, want %d", def.Hash, NormalizeHash(weaponHash))
	}
	if def.Name != "Izanagi's Burden" {
		t.Errorf("name = %q", def.Name)
	}
	if def.DamageType != "kinetic" {
		t.Errorf("damage type = %q, want kinetic", def.DamageType)
	}
	if def.GunType != "Sniper Rifle" {
		t.Errorf("gun type = %q", def.GunType)
	}
}

func TestWeaponClassified(t *testing.T) {
	const weaponHash = int64(1234)

	path := newSnapshot(t, map[Table]map[int64]string{
		TableInventoryItem: {
			weaponHash: `{
				"displayProperties": {"name": "Classified"},
				"inventory": {"bucketTypeHash": 0},
				"itemTypeDisplayName": "Auto Rifle"
			}`,
		},
	})

	cat, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	def, err := cat.Weapon(weaponHash)
	if err != nil {
		t.Fatalf("weapon lookup failed: %v", err)
	}
	if def.GunType != "Classified" {
		t.Errorf("gun type = %q, want Classified while the item is classified", def.GunType)
	}
}

func TestWeaponNotFound(t *testing.T) {
	path := newSnapshot(t, nil)

	cat, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	if _, err := cat.Weapon(999999); err == nil {
		t.Fatal("expected lookup of unknown weapon to fail")
	}
}

func TestClassAndActivityNames(t *testing.T) {
	path := newSnapshot(t, map[Table]map[int64]string{
		TableClass: {
			NormalizeHash(3655393761): `{"displayProperties": {"name": "Titan"}}`,
		},
		TableActivity: {
			100: `{"displayProperties": {"name": "The Crucible"}}`,
		},
	})

	cat, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	name, err := cat.ClassName(3655393761)
	if err != nil {
		t.Fatalf("class lookup failed: %v", err)
	}
	if name != "Titan" {
		t.Errorf("class name = %q", name)
	}

	activity, err := cat.ActivityName(100)
	if err != nil {
		t.Fatalf("activity lookup failed: %v", err)
	}
	if activity != "The Crucible" {
		t.Errorf("activity name = %q", activity)
	}
}
