package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"clan-tracker/internal/config"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var ErrDefinitionNotFound = errors.New("definition not found in catalog")

// Table identifies one definition table in the reference catalog snapshot.
type Table int

const (
	TableInventoryItem Table = iota
	TableInventoryBucket
	TableClass
	TableActivity
	TableActivityMode
)

func (t Table) String() string {
	switch t {
	case TableInventoryItem:
		return "DestinyInventoryItemDefinition"
	case TableInventoryBucket:
		return "DestinyInventoryBucketDefinition"
	case TableClass:
		return "DestinyClassDefinition"
	case TableActivity:
		return "DestinyActivityDefinition"
	case TableActivityMode:
		return "DestinyActivityModeDefinition"
	default:
		return "unknown"
	}
}

// Catalog answers hash lookups against the downloaded manifest snapshot.
// The snapshot is read-only from the pipeline's perspective; a stale or
// missing definition is reported as ErrDefinitionNotFound, never invented.
type Catalog struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(cfg *config.Config, logger zerolog.Logger) (*Catalog, error) {
	return Open(cfg.ManifestDBPath, logger)
}

func Open(path string, logger zerolog.Logger) (*Catalog, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	// A missing or corrupt snapshot is a fatal setup condition. Check it
	// now so the run aborts with a clear diagnostic instead of failing on
	// the first lookup mid-batch.
	var count int
	err = db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", TableInventoryItem.String()).Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to inspect catalog database %s: %w", path, err)
	}
	if count == 0 {
		db.Close()
		return nil, fmt.Errorf("catalog database %s has no %s table", path, TableInventoryItem)
	}

	logger.Info().Str("path", path).Msg("catalog database opened")
	return &Catalog{db: db, logger: logger}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

type displayProperties struct {
	Name string `json:"name"`
}

type itemDefinition struct {
	DisplayProperties displayProperties `json:"displayProperties"`
	Inventory         struct {
		BucketTypeHash int64 `json:"bucketTypeHash"`
	} `json:"inventory"`
	ItemTypeDisplayName string `json:"itemTypeDisplayName"`
}

type namedDefinition struct {
	DisplayProperties displayProperties `json:"displayProperties"`
}

// WeaponDefinition is the catalog view of one weapon the pipeline cares
// about: display name, damage category derived from its inventory bucket,
// and subtype. Classified items carry "Classified" for name and subtype.
type WeaponDefinition struct {
	Hash       int64
	Name       string
	DamageType string
	GunType    string
}

func (c *Catalog) definition(table Table, hash int64, out any) error {
	var blob []byte
	query := fmt.Sprintf("SELECT json FROM %s WHERE id = ?", table)
	err := c.db.QueryRow(query, NormalizeHash(hash)).Scan(&blob)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s hash %d: %w", table, hash, ErrDefinitionNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to query %s for hash %d: %w", table, hash, err)
	}

	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("malformed %s definition for hash %d: %w", table, hash, err)
	}
	return nil
}

// Weapon resolves a weapon reference id from a match report into its catalog
// entry. The id is sign-normalized before lookup.
func (c *Catalog) Weapon(referenceID int64) (*WeaponDefinition, error) {
	var item itemDefinition
	if err := c.definition(TableInventoryItem, referenceID, &item); err != nil {
		return nil, err
	}

	def := &WeaponDefinition{
		Hash: NormalizeHash(referenceID),
		Name: item.DisplayProperties.Name,
	}

	damageType, err := c.bucketName(item.Inventory.BucketTypeHash)
	if err != nil {
		c.logger.Warn().Err(err).Int64("reference_id", referenceID).Msg("weapon bucket not found in catalog")
	}
	def.DamageType = damageType

	if def.Name == "Classified" {
		def.GunType = "Classified"
	} else {
		def.GunType = item.ItemTypeDisplayName
	}

	return def, nil
}

// bucketName maps an inventory bucket to the damage category the read API
// groups by: "kinetic", "energy" or "power".
func (c *Catalog) bucketName(bucketHash int64) (string, error) {
	var bucket namedDefinition
	if err := c.definition(TableInventoryBucket, bucketHash, &bucket); err != nil {
		return "", err
	}

	name := strings.ToLower(bucket.DisplayProperties.Name)
	if i := strings.IndexByte(name, ' '); i > 0 {
		name = name[:i]
	}
	return name, nil
}

// ClassName resolves a character class hash to its display name.
func (c *Catalog) ClassName(classHash int64) (string, error) {
	var class namedDefinition
	if err := c.definition(TableClass, classHash, &class); err != nil {
		return "", err
	}
	return class.DisplayProperties.Name, nil
}

// ActivityName resolves an activity hash to its display name.
func (c *Catalog) ActivityName(activityHash int64) (string, error) {
	var activity namedDefinition
	if err := c.definition(TableActivity, activityHash, &activity); err != nil {
		return "", err
	}
	return activity.DisplayProperties.Name, nil
}
