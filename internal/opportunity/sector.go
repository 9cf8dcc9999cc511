package opportunity

import (
	"strings"

	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

// sectorMatchers is checked in order; the first substring hit wins
var sectorMatchers = []struct {
	substr string
	sector string
}{
	{"tech", models.SectorTechnology},
	{"communication", models.SectorCommunication},
	{"health", models.SectorHealthcare},
	{"financ", models.SectorFinancial},
	{"consumer", models.SectorConsumer},
}

// ClassifySector maps a provider sector string onto one of the scoring
// sectors. Matching is case-insensitive.
func ClassifySector(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return models.SectorOther
	}
	for _, m := range sectorMatchers {
		if strings.Contains(s, m.substr) {
			return m.sector
		}
	}
	return models.SectorOther
}
