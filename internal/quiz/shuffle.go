package quiz

import "math/rand"

// ShuffleOptions permutes a candidate's options in place and remaps its
// answer index to follow the correct option. Models put the correct answer
// first far more often than chance, so after shuffling the correct option
// is never left in position zero.
func ShuffleOptions(c *Candidate, rng *rand.Rand) {
	n := len(c.Options)
	if n < 2 {
		return
	}

	// Fisher-Yates.
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		c.Options[i], c.Options[j] = c.Options[j], c.Options[i]
		switch c.AnswerIndex {
		case i:
			c.AnswerIndex = j
		case j:
			c.AnswerIndex = i
		}
	}

	if c.AnswerIndex == 0 {
		j := 1 + rng.Intn(n-1)
		c.Options[0], c.Options[j] = c.Options[j], c.Options[0]
		c.AnswerIndex = j
	}
}
