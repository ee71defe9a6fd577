package plate

// confusables maps each character to the characters an OCR engine commonly
// mistakes it for. Lookups check both directions.
var confusables = map[rune]string{
	'0': "OQD",
	'O': "0QD",
	'1': "IL7",
	'I': "1L7",
	'L': "1I7",
	'5': "S",
	'S': "5",
	'8': "B",
	'B': "8",
	'6': "G",
	'G': "6C",
	'C': "GO",
	'2': "Z",
	'Z': "2",
	'E': "F",
	'F': "E",
	'P': "R",
	'R': "P",
	'M': "N",
	'N': "M",
	'U': "V",
	'V': "U",
	'K': "X",
	'X': "K",
}

const (
	confusableCost = 0.5
	editCost       = 1.0
)

// IsConfusable reports whether a and b are a known OCR confusion pair.
func IsConfusable(a, b rune) bool {
	return containsRune(confusables[a], b) || containsRune(confusables[b], a)
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func substitutionCost(a, b rune) float64 {
	switch {
	case a == b:
		return 0
	case IsConfusable(a, b):
		return confusableCost
	default:
		return editCost
	}
}

// Distance returns the weighted edit distance between the normalized forms of
// a and b. Substituting a confusable pair costs 0.5, any other edit costs 1.
func Distance(a, b string) float64 {
	return distance([]rune(Normalize(a)), []rune(Normalize(b)))
}

func distance(s1, s2 []rune) float64 {
	if string(s1) == string(s2) {
		return 0
	}
	if len(s1) == 0 {
		return float64(len(s2))
	}
	if len(s2) == 0 {
		return float64(len(s1))
	}

	// two rolling rows of the (len1+1)x(len2+1) matrix
	prev := make([]float64, len(s2)+1)
	curr := make([]float64, len(s2)+1)
	for j := range prev {
		prev[j] = float64(j)
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = float64(i)
		for j := 1; j <= len(s2); j++ {
			curr[j] = min(
				prev[j]+editCost,
				curr[j-1]+editCost,
				prev[j-1]+substitutionCost(s1[i-1], s2[j-1]),
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

// Similarity scores a and b from 0 (unrelated) to 100 (identical after
// normalization).
func Similarity(a, b string) float64 {
	s1 := []rune(Normalize(a))
	s2 := []rune(Normalize(b))

	maxLen := max(len(s1), len(s2))
	if maxLen == 0 {
		return 100
	}

	score := (1 - distance(s1, s2)/float64(maxLen)) * 100
	return max(0, min(100, score))
}

// Match is a scored candidate.
type Match struct {
	Text       string
	Similarity float64
}

// BestMatch returns the candidate with the highest similarity to text that is
// at or above threshold. Ties go to the lexicographically smallest candidate.
func BestMatch(text string, candidates []string, threshold float64) (Match, bool) {
	var best Match
	found := false

	for _, c := range candidates {
		score := Similarity(text, c)
		if score < threshold {
			continue
		}
		if !found || score > best.Similarity || (score == best.Similarity && c < best.Text) {
			best = Match{Text: c, Similarity: score}
			found = true
		}
	}
	return best, found
}
