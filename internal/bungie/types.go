package bungie

import "time"

type ProfileResponse struct {
	Profile struct {
		Data struct {
			DateLastPlayed time.Time `json:"dateLastPlayed"`
			CharacterIDs   []string  `json:"characterIds"`
		} `json:"data"`
	} `json:"profile"`
	ProfileRecords struct {
		Data struct {
			Score int64 `json:"score"`
		} `json:"data"`
	} `json:"profileRecords"`
	Characters struct {
		Data map[string]CharacterComponent `json:"data"`
	} `json:"characters"`
	CharacterActivities struct {
		Data map[string]CharacterActivityComponent `json:"data"`
	} `json:"characterActivities"`
}

type CharacterComponent struct {
	CharacterID    string    `json:"characterId"`
	ClassHash      int64     `json:"classHash"`
	Light          int       `json:"light"`
	DateLastPlayed time.Time `json:"dateLastPlayed"`
}

type CharacterActivityComponent struct {
	CurrentActivityHash int64     `json:"currentActivityHash"`
	DateActivityStarted time.Time `json:"dateActivityStarted"`
}

type ActivityHistoryResponse struct {
	Activities []Activity `json:"activities"`
}

type Activity struct {
	Period          time.Time       `json:"period"`
	ActivityDetails ActivityDetails `json:"activityDetails"`
}

type ActivityDetails struct {
	ReferenceID int64  `json:"referenceId"`
	InstanceID  string `json:"instanceId"`
	Mode        int    `json:"mode"`
	Modes       []int  `json:"modes"`
}

type PostGameReport struct {
	Period          time.Time       `json:"period"`
	ActivityDetails ActivityDetails `json:"activityDetails"`
	Entries         []ReportEntry   `json:"entries"`
}

type ReportEntry struct {
	CharacterID string `json:"characterId"`
	Extended    struct {
		Weapons []WeaponUsage `json:"weapons"`
	} `json:"extended"`
}

type WeaponUsage struct {
	ReferenceID int64 `json:"referenceId"`
	Values      struct {
		UniqueWeaponKills StatValue `json:"uniqueWeaponKills"`
	} `json:"values"`
}

type StatValue struct {
	Basic struct {
		Value        float64 `json:"value"`
		DisplayValue string  `json:"displayValue"`
	} `json:"basic"`
}

type ClanRosterResponse struct {
	Results []ClanMember `json:"results"`
}

type ClanMember struct {
	DestinyUserInfo UserInfo  `json:"destinyUserInfo"`
	JoinDate        time.Time `json:"joinDate"`
	IsOnline        bool      `json:"isOnline"`
}

type UserInfo struct {
	MembershipID   string `json:"membershipId"`
	MembershipType int    `json:"membershipType"`
	DisplayName    string `json:"displayName"`
}

type ManifestResponse struct {
	Version                 string            `json:"version"`
	MobileWorldContentPaths map[string]string `json:"mobileWorldContentPaths"`
}
