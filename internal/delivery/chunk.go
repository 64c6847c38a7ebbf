package delivery

import "strings"

// Chunk splits text into pieces no longer than maxChars, preferring
// paragraph boundaries ("\n\n") and falling back to a hard character
// slice only when a single paragraph itself exceeds maxChars.
func Chunk(text string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	paragraphs := strings.Split(text, "\n\n")
	for _, p := range paragraphs {
		candidate := p
		if current.Len() > 0 {
			candidate = current.String() + "\n\n" + p
		}
		if len(candidate) <= maxChars {
			current.Reset()
			current.WriteString(candidate)
			continue
		}

		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}

		if len(p) <= maxChars {
			current.WriteString(p)
			continue
		}

		// A single paragraph exceeds the limit: hard-slice it.
		for len(p) > maxChars {
			chunks = append(chunks, p[:maxChars])
			p = p[maxChars:]
		}
		current.WriteString(p)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
