package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/leadflow/internal/leads"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want leads.Attributes
	}{
		{"empty", "", leads.Attributes{}},
		{"nothing", "добрый вечер", leads.Attributes{}},
		{"city stem", "мы из алматинской области", leads.Attributes{AttrCity: "Алматы"}},
		{"latin x", "10x20", leads.Attributes{AttrDimensions: map[string]any{"length": float64(10), "width": float64(20)}}},
		{"cyrillic х", "дом 6 х 8", leads.Attributes{AttrDimensions: map[string]any{"length": float64(6), "width": float64(8)}}},
		{"multiplication sign", "12×14", leads.Attributes{AttrDimensions: map[string]any{"length": float64(12), "width": float64(14)}}},
		{"na", "9,5 на 12", leads.Attributes{AttrDimensions: map[string]any{"length": 9.5, "width": float64(12)}}},
		{"foundation absent", "участок без фундамента", leads.Attributes{AttrFoundation: FoundationAbsent}},
		{"foundation present", "фундамент уже залит, фундамент готов", leads.Attributes{AttrFoundation: FoundationPresent}},
		{"foundation unknown", "а фундамент нужен?", leads.Attributes{AttrFoundation: FoundationUnknown}},
		{"counts", "нужно 7 окон и 3 двери", leads.Attributes{AttrWindows: 7, AttrDoors: 3}},
		{"counts no space", "5окон", leads.Attributes{AttrWindows: 5}},
		{"window singular", "1 окно", leads.Attributes{AttrWindows: 1}},
		{"windows paucal", "4 окна", leads.Attributes{AttrWindows: 4}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Extract(tc.text))
		})
	}
}

func TestExtractIsAdditiveWithLeadAttributes(t *testing.T) {
	existing := leads.Attributes{AttrCity: "Алматы", "budget": "5m"}
	merged := existing.Merge(Extract("нужно 4 окна"))
	assert.Equal(t, "Алматы", merged[AttrCity])
	assert.Equal(t, "5m", merged["budget"])
	assert.Equal(t, 4, merged[AttrWindows])
	assert.NotContains(t, existing, AttrWindows)
}
