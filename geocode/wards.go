package geocode

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// defaultWards maps Manchester outward codes to the ward shown to users.
var defaultWards = map[string]string{
	"M1":  "City Centre",
	"M2":  "Spinningfields",
	"M3":  "Deansgate",
	"M4":  "Northern Quarter",
	"M5":  "Salford Quays",
	"M6":  "Pendleton",
	"M7":  "Strangeways",
	"M8":  "Cheetham Hill",
	"M9":  "Blackley",
	"M11": "Beswick",
	"M12": "Ardwick",
	"M13": "Fallowfield",
	"M14": "Withington",
	"M15": "Chorlton",
	"M16": "Whalley Range",
	"M17": "Old Trafford",
	"M18": "Gorton",
	"M19": "Levenshulme",
	"M20": "Didsbury",
	"M21": "Chorlton-cum-Hardy",
	"M22": "Wythenshawe",
	"M23": "Woodhouse Park",
	"M24": "Heywood",
	"M25": "Prestwich",
	"M26": "Radcliffe",
	"M27": "Swinton",
	"M28": "Walkden",
	"M29": "Little Hulton",
	"M30": "Eccles",
	"M31": "Partington",
	"M32": "Stretford",
	"M33": "Sale",
	"M34": "Denton",
	"M35": "Mossley",
	"M36": "Ashton-under-Lyne",
	"M37": "Droylsden",
	"M38": "Audenshaw",
	"M39": "Barton-upon-Irwell",
	"M40": "Harpurhey",
	"M41": "Partington",
	"M42": "Stalybridge",
	"M43": "Gorse Hill",
	"M44": "Irlam",
	"M45": "Whitefield",
	"M46": "Atherton",
	"M47": "Saddleworth",
	"M48": "Boothstown",
	"M49": "Walkden",
	"M50": "Salford Quays",
	"M51": "Swinton",
	"M52": "Kersal",
	"M53": "Kearsley",
	"M54": "Kersley",
	"M55": "Manchester City Centre",
	"M56": "Baguley",
	"M57": "Hulme",
	"M58": "Blackley North",
	"M59": "Manchester North East",
}

// NormalizePostcode removes all whitespace and upper-cases the postcode.
func NormalizePostcode(pc string) string {
	return strings.ToUpper(strings.Join(strings.Fields(pc), ""))
}

// WardTable is the static postcode to ward override table. Keys are stored
// normalized and matched exactly.
type WardTable struct {
	mu    sync.RWMutex
	wards map[string]string
}

// NewWardTable returns a table seeded with the built-in Manchester entries.
func NewWardTable() *WardTable {
	t := &WardTable{wards: make(map[string]string, len(defaultWards))}
	for k, v := range defaultWards {
		t.wards[NormalizePostcode(k)] = v
	}
	return t
}

// Lookup returns the ward for pc if it has a static entry.
func (t *WardTable) Lookup(pc string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.wards[NormalizePostcode(pc)]
	return w, ok
}

// Set adds or replaces one entry.
func (t *WardTable) Set(pc, ward string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wards[NormalizePostcode(pc)] = ward
}

// Len reports the number of entries.
func (t *WardTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.wards)
}

// LoadOverrides merges a YAML file of the form
//
//	wards:
//	  M14 6HR: Withington
//	  M1: City Centre
//
// into the table. Entries in the file replace built-in ones.
func (t *WardTable) LoadOverrides(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ward overrides: read %s: %w", path, err)
	}

	var doc struct {
		Wards map[string]string `yaml:"wards"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("ward overrides: parse %s: %w", path, err)
	}

	for pc, ward := range doc.Wards {
		if strings.TrimSpace(pc) == "" || strings.TrimSpace(ward) == "" {
			continue
		}
		t.Set(pc, strings.TrimSpace(ward))
	}
	return nil
}
