package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/leadflow/internal/leads"
)

// Attribute keys written by Extract.
const (
	AttrCity       = "city"
	AttrDimensions = "dimensions"
	AttrFoundation = "foundation"
	AttrWindows    = "windows"
	AttrDoors      = "doors"
)

// Foundation states.
const (
	FoundationPresent = "present"
	FoundationAbsent  = "absent"
	FoundationUnknown = "unknown"
)

type city struct {
	stem string
	name string
}

var gazetteer = []city{
	{"алмат", "Алматы"},
	{"астан", "Астана"},
	{"шымкент", "Шымкент"},
	{"караганд", "Караганда"},
	{"актобе", "Актобе"},
	{"актау", "Актау"},
	{"атырау", "Атырау"},
	{"тараз", "Тараз"},
	{"павлодар", "Павлодар"},
	{"костанай", "Костанай"},
	{"кызылорд", "Кызылорда"},
	{"талдыкорган", "Талдыкорган"},
	{"усть-каменогорск", "Усть-Каменогорск"},
}

var (
	dimensionsPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:x|х|×|\*|на)\s*(\d+(?:[.,]\d+)?)`)
	windowsPattern    = regexp.MustCompile(`(\d+)\s*ок(?:о)?н`)
	doorsPattern      = regexp.MustCompile(`(\d+)\s*двер`)
)

var (
	foundationAbsent  = []string{"без фундамента", "нет фундамента", "фундамента нет", "фундамента еще нет", "фундамента ещё нет"}
	foundationPresent = []string{"есть фундамент", "фундамент есть", "фундамент готов", "фундамент залит", "с фундаментом"}
)

// Extract pulls structured attributes out of lower-cased text. It returns an
// empty patch when nothing is recognised.
func Extract(normalized string) leads.Attributes {
	patch := leads.Attributes{}
	if normalized == "" {
		return patch
	}
	for _, c := range gazetteer {
		if strings.Contains(normalized, c.stem) {
			patch[AttrCity] = c.name
			break
		}
	}
	if m := dimensionsPattern.FindStringSubmatch(normalized); m != nil {
		length, errL := parseNumber(m[1])
		width, errW := parseNumber(m[2])
		if errL == nil && errW == nil {
			patch[AttrDimensions] = map[string]any{"length": length, "width": width}
		}
	}
	if state := foundationState(normalized); state != "" {
		patch[AttrFoundation] = state
	}
	if n, ok := countOf(windowsPattern, normalized); ok {
		patch[AttrWindows] = n
	}
	if n, ok := countOf(doorsPattern, normalized); ok {
		patch[AttrDoors] = n
	}
	return patch
}

func foundationState(text string) string {
	if !strings.Contains(text, "фундамент") {
		return ""
	}
	for _, p := range foundationAbsent {
		if strings.Contains(text, p) {
			return FoundationAbsent
		}
	}
	for _, p := range foundationPresent {
		if strings.Contains(text, p) {
			return FoundationPresent
		}
	}
	return FoundationUnknown
}

func countOf(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseNumber(v string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
}
