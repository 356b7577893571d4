package extract

// findJSONCandidates returns every balanced top-level {...} span in s, in
// order. Braces inside string literals are ignored, as are escaped quotes.
//
// Iterating bytes is safe for the ASCII delimiters because UTF-8 never
// encodes them inside a multi-byte sequence.
func findJSONCandidates(s string) []string {
	var (
		candidates []string
		depth      int
		start      = -1
		inString   bool
		escape     bool
	)

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				candidates = append(candidates, s[start:i+1])
				start = -1
			}
		}
	}

	return candidates
}
