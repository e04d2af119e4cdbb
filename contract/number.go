package contract

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"time"
)

// MaxNumberAttempts bounds the retries when a generated number collides.
const MaxNumberAttempts = 5

var numberPattern = regexp.MustCompile(`^CON-\d{4}-\d{6}$`)

const suffixSpace = 1_000_000

// NumberGenerator produces human readable record numbers of the form
// CON-YYMM-NNNNNN. Numbers are random, so uniqueness is left to the store.
type NumberGenerator struct {
	now    func() time.Time
	random io.Reader
}

// NewNumberGenerator builds a generator reading the given clock. A nil clock
// uses time.Now.
func NewNumberGenerator(now func() time.Time) *NumberGenerator {
	if now == nil {
		now = time.Now
	}
	return &NumberGenerator{now: now, random: rand.Reader}
}

// WithRandom swaps the entropy source.
func (g *NumberGenerator) WithRandom(r io.Reader) *NumberGenerator {
	g.random = r
	return g
}

// Next returns a fresh candidate number.
func (g *NumberGenerator) Next() (string, error) {
	var buf [4]byte
	if _, err := io.ReadFull(g.random, buf[:]); err != nil {
		return "", fmt.Errorf("contract: generate number suffix: %w", err)
	}
	suffix := binary.BigEndian.Uint32(buf[:]) % suffixSpace
	t := g.now()
	return fmt.Sprintf("CON-%02d%02d-%06d", t.Year()%100, int(t.Month()), suffix), nil
}

// ValidNumber reports whether s has the record number shape.
func ValidNumber(s string) bool {
	return numberPattern.MatchString(s)
}
