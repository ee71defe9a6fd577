package plate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lower case", "ab123c", "AB123C"},
		{"separators", "ab-123.c", "AB123C"},
		{"all separators", " a_b/1\\2,3 c\t", "AB123C"},
		{"only separators", "-- ..", ""},
		{"full width", "ＡＢ－１２３ｃ", "AB123C"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"ab-123 c", "XYZ_9", "  "} {
		assert.Equal(t, Normalize(s), Normalize(Normalize(s)))
	}
}

func TestSimilarity_Properties(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 100.0, Similarity("", ""), 0)
	assert.InDelta(t, 100.0, Similarity("ab-123c", "AB123C"), 0)
	assert.InDelta(t, 0.0, Similarity("", "ABC"), 0)

	pairs := [][2]string{{"AB123C", "AB128C"}, {"XYZ", "X7Z9"}, {"O0O", "QQ"}}
	for _, p := range pairs {
		assert.InDelta(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), 1e-9, "symmetry %v", p)
		s := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 100.0)
	}
}

func TestDistance_Confusables(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, Distance("AB0", "ABO"), 0)
	assert.InDelta(t, 0.5, Distance("ABO", "AB0"), 0)
	assert.InDelta(t, 0.5, Distance("C", "G"), 0)
	assert.InDelta(t, 0.5, Distance("C", "O"), 0)
	// only the C row lists O
	assert.True(t, IsConfusable('O', 'C'))
	assert.InDelta(t, 1.0, Distance("AB0", "ABX"), 0)
	assert.InDelta(t, 1.0, Distance("AB", "ABC"), 0)
	assert.InDelta(t, 3.0, Distance("", "ABC"), 0)
}

func TestSimilarity_ConfusableScoresHigher(t *testing.T) {
	t.Parallel()

	confusable := Similarity("AB0123", "ABO123")
	unrelated := Similarity("AB0123", "ABX123")
	assert.Greater(t, confusable, unrelated)
	assert.InDelta(t, (1-0.5/6)*100, confusable, 1e-9)
}

func TestAdaptiveThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want float64
	}{
		{0, 90}, {4, 90}, {5, 85}, {6, 85}, {7, 80}, {8, 80}, {9, 75}, {10, 75},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, AdaptiveThreshold(tt.n), 0, "n=%d", tt.n)
	}
	assert.InDelta(t, 85.0, ThresholdFor("ab-123c"), 0)
}

func TestBestMatch(t *testing.T) {
	t.Parallel()

	t.Run("no candidates", func(t *testing.T) {
		t.Parallel()
		_, ok := BestMatch("AB123C", nil, 85)
		assert.False(t, ok)
	})

	t.Run("below threshold", func(t *testing.T) {
		t.Parallel()
		_, ok := BestMatch("AB123C", []string{"ZZ999Z"}, 85)
		assert.False(t, ok)
	})

	t.Run("highest score wins", func(t *testing.T) {
		t.Parallel()
		m, ok := BestMatch("AB123C", []string{"AB128C", "AB123C", "XX123C"}, 50)
		assert.True(t, ok)
		assert.Equal(t, "AB123C", m.Text)
		assert.InDelta(t, 100.0, m.Similarity, 0)
	})

	t.Run("ties break lexicographically", func(t *testing.T) {
		t.Parallel()
		m, ok := BestMatch("AB123C", []string{"AB123X", "AB123D"}, 50)
		assert.True(t, ok)
		assert.Equal(t, "AB123D", m.Text)

		m2, _ := BestMatch("AB123C", []string{"AB123D", "AB123X"}, 50)
		assert.Equal(t, m.Text, m2.Text)
	})
}
