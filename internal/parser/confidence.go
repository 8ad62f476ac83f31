package parser

import "signalrelay/internal/models"

// confidenceBuilder accumulates a score from a base plus weighted factors,
// clamping to [0, 100] and keeping the human-readable factor strings that
// tests assert the presence and direction of effect of.
type confidenceBuilder struct {
	score   int
	factors []string
}

func newConfidence(base int) *confidenceBuilder {
	return &confidenceBuilder{score: base}
}

// add records a positive factor.
func (c *confidenceBuilder) add(delta int, reason string) *confidenceBuilder {
	c.score += delta
	c.factors = append(c.factors, reason)
	return c
}

// subtract records a negative factor.
func (c *confidenceBuilder) subtract(delta int, reason string) *confidenceBuilder {
	c.score -= delta
	c.factors = append(c.factors, reason)
	return c
}

func (c *confidenceBuilder) build() models.Confidence {
	score := c.score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return models.Confidence{Score: score, Factors: c.factors}
}
