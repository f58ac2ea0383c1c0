package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/screening-service/internal/domain"
)

func TestStrongKey(t *testing.T) {
	tests := []struct {
		name     string
		doi      string
		expected string
	}{
		{
			name:     "plain DOI passes through lower-cased",
			doi:      "10.1109/TC.2023.12345",
			expected: "10.1109/tc.2023.12345",
		},
		{
			name:     "https doi.org prefix is stripped",
			doi:      "https://doi.org/10.1145/3579371",
			expected: "10.1145/3579371",
		},
		{
			name:     "http dx.doi.org prefix is stripped",
			doi:      "http://dx.doi.org/10.1000/xyz",
			expected: "10.1000/xyz",
		},
		{
			name:     "doi label prefix is stripped",
			doi:      "DOI:10.1000/xyz",
			expected: "10.1000/xyz",
		},
		{
			name:     "surrounding whitespace and punctuation trimmed",
			doi:      "  10.1000/xyz. ",
			expected: "10.1000/xyz",
		},
		{
			name:     "empty DOI yields empty key",
			doi:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StrongKey(tt.doi))
		})
	}
}

func TestWeakKey(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		year     string
		expected string
	}{
		{
			name:     "title is lower-cased and stripped of non-alphanumerics",
			title:    "A Low-Power Wearable: Design & Evaluation",
			year:     "2021",
			expected: "alowpowerwearabledesignevaluation:2021",
		},
		{
			name:     "missing year yields title-only key",
			title:    "Edge Inference",
			year:     "",
			expected: "edgeinference",
		},
		{
			name:     "empty title yields empty key even with a year",
			title:    "",
			year:     "2020",
			expected: "",
		},
		{
			name:     "punctuation-only title yields empty key",
			title:    "---",
			year:     "2020",
			expected: "",
		},
		{
			name:     "capitalization and punctuation differences collapse",
			title:    "TinyML on MCUs!",
			year:     "2022",
			expected: "tinymlonmcus:2022",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WeakKey(tt.title, tt.year))
		})
	}
}

func TestWeakKeyCollision(t *testing.T) {
	// Two exports of the same paper with formatting differences must agree.
	a := WeakKey("Energy-Efficient Bird Call Detection", "2023")
	b := WeakKey("energy efficient bird-call detection", "2023")
	assert.Equal(t, a, b)

	// A different year keeps the papers apart.
	c := WeakKey("Energy-Efficient Bird Call Detection", "2024")
	assert.NotEqual(t, a, c)
}

func TestKeys(t *testing.T) {
	t.Run("derives both keys from a record", func(t *testing.T) {
		strong, weak := Keys(domain.RawRecord{
			EntryType: "article",
			Fields: map[string]string{
				"title": "Wearable ECG Monitor",
				"year":  "2022",
				"doi":   "https://doi.org/10.1109/abc",
			},
		})
		assert.Equal(t, "10.1109/abc", strong)
		assert.Equal(t, "wearableecgmonitor:2022", weak)
	})

	t.Run("record with neither title nor DOI yields two empty keys", func(t *testing.T) {
		strong, weak := Keys(domain.RawRecord{
			EntryType: "article",
			Fields:    map[string]string{"author": "Somebody"},
		})
		assert.Empty(t, strong)
		assert.Empty(t, weak)
	})
}
