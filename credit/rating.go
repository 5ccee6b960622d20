package credit

import (
	"fmt"
	"strings"
)

// Grade is a credit rating on the fixed scale AAA (best) .. D (default).
type Grade string

const (
	AAA Grade = "AAA"
	AA  Grade = "AA"
	A   Grade = "A"
	BBB Grade = "BBB"
	BB  Grade = "BB"
	B   Grade = "B"
	CCC Grade = "CCC"
	CC  Grade = "CC"
	C   Grade = "C"
	D   Grade = "D"
)

// Grades lists the scale from least to most risky.
var Grades = []Grade{AAA, AA, A, BBB, BB, B, CCC, CC, C, D}

var gradeRank = func() map[Grade]int {
	m := make(map[Grade]int, len(Grades))
	for i, g := range Grades {
		m[g] = i
	}
	return m
}()

// ParseGrade accepts a grade in any case with surrounding space.
func ParseGrade(s string) (Grade, error) {
	g := Grade(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := gradeRank[g]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGrade, s)
	}
	return g, nil
}

// Valid reports whether g is on the scale.
func (g Grade) Valid() bool {
	_, ok := gradeRank[g]
	return ok
}

// Rank is the ordinal position on the scale, 0 for AAA. Unknown grades rank -1.
func (g Grade) Rank() int {
	r, ok := gradeRank[g]
	if !ok {
		return -1
	}
	return r
}

// RiskierThan compares by ordinal position, never by string order.
// "BBB" sorts before "A" lexically but is the riskier grade.
func (g Grade) RiskierThan(o Grade) bool {
	return g.Valid() && o.Valid() && g.Rank() > o.Rank()
}

// Notches is the number of scale steps from old to g; positive means a downgrade.
func (g Grade) Notches(old Grade) int {
	if !g.Valid() || !old.Valid() {
		return 0
	}
	return g.Rank() - old.Rank()
}

func (g Grade) String() string { return string(g) }

// RiskClass is stored on the customer next to the grade and may drift from it.
type RiskClass string

const (
	RiskLow      RiskClass = "low"
	RiskMedium   RiskClass = "medium"
	RiskHigh     RiskClass = "high"
	RiskVeryHigh RiskClass = "very_high"
)

// RiskClasses in display order.
var RiskClasses = []RiskClass{RiskLow, RiskMedium, RiskHigh, RiskVeryHigh}
