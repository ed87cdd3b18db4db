package domain

import (
	"time"
)

type Player struct {
	ID               int64
	MembershipID     string
	MembershipType   int
	Name             string
	Triumph          int64
	LastActivity     string
	LastActivityTime time.Time
	LastPlayed       time.Time
	LastUpdated      time.Time
	Online           bool
	JoinDate         time.Time
}

type Character struct {
	ID        int64
	PlayerID  int64
	CharID    string
	ClassName string
	Power     int
	// LastMatchID is the highest fully processed match id for this
	// character. Zero means nothing has been processed.
	LastMatchID int64
}

type Weapon struct {
	ID         int64
	WeaponID   int64 // signed catalog hash
	Name       string
	DamageType string
	GunType    string
}

type WeaponKillRecord struct {
	ID          string // nanoid
	CharacterID int64
	WeaponID    int64
	Kills       int
	MatchTime   time.Time
}

type MatchReport struct {
	ID          int64
	PGCRID      int64
	CharacterID int64 // marks which character's kills were extracted, not part of the payload row
	Mode        int
	Period      time.Time
	Data        string // raw report payload JSON, exactly as received
}

type Manifest struct {
	ID      int64
	URL     string
	Hash    string
	Updated time.Time
}
