package domain

// Zone is the per-zone inventory record. Sold only grows, and only when a
// confirmation commits under the zone's row lock.
type Zone struct {
	ID      string
	EventID string
	Name    string
	Quota   int
	Sold    int
}

// Available returns the seats left once sold seats and live pending holds are
// taken out. It can go negative only if the ledger was corrupted externally.
func (z Zone) Available(activePending int) int {
	return z.Quota - z.Sold - activePending
}

// Availability is the read-side projection of a zone.
type Availability struct {
	ZoneID    string `json:"zone_id"`
	EventID   string `json:"event_id"`
	Name      string `json:"name"`
	Quota     int    `json:"quota"`
	Sold      int    `json:"sold"`
	Pending   int    `json:"pending"`
	Waiting   int    `json:"waiting"`
	Available int    `json:"available"`
}
