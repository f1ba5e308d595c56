package trip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeInterest(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Museum", "museum"},
		{"  MUSEU ", "museum"},
		{"musée", "museum"},
		{"Gastronomía", "food"},
		{"Nachtleben", "nightlife"},
		{"História", "history"},
		{"street art", "street art"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeInterest(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeInterests_DedupesAfterTranslation(t *testing.T) {
	got := NormalizeInterests([]string{"Museum", "museu", "musée", "food", ""})
	assert.Equal(t, []string{"museum", "food"}, got)
}
