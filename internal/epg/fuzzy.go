package epg

// Ratio scores the similarity of two strings in [0,1] as 1 - d/maxLen, where
// d is the Levenshtein distance over runes. Two empty strings score 1.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 || lb == 0 {
		return 0
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d := prev[j] + 1
			if ins := cur[j-1] + 1; ins < d {
				d = ins
			}
			if sub := prev[j-1] + cost; sub < d {
				d = sub
			}
			cur[j] = d
		}
		prev, cur = cur, prev
	}

	maxLen := la
	if lb > la {
		maxLen = lb
	}
	return 1 - float64(prev[lb])/float64(maxLen)
}
