package chromosome

import (
	"fmt"
	"strconv"
	"strings"
)

// CanonicalChromosomes returns the set of chromosomes that participate
// in scatter/gather: the autosomes plus the sex chromosomes. The
// mitochondrial genome is excluded downstream and never sharded.
func CanonicalChromosomes() []string {
	var chroms []string
	for i := 1; i < 23; i++ {
		chroms = append(chroms, fmt.Sprint(i))
	}
	chroms = append(chroms, "X")
	chroms = append(chroms, "Y")
	return chroms
}

// ReferenceChromosomes returns the set the reference build is restricted
// to; same as the canonical set, but with the mitochondrial genome
// included so downstream tools can resolve M-mapped reads.
func ReferenceChromosomes() []string {
	return append(CanonicalChromosomes(), "M")
}

func IsCanonicalChromosome(text string) bool {
	normalized := Normalize(text)

	// Check if number can be represented as an int and is non-zero
	chromNumber, _ := strconv.Atoi(normalized)
	if chromNumber > 0 {
		// It can..
		// Check if it is in range 1-22
		if chromNumber < 23 {
			return true
		}
	} else {
		// No it can't..
		// Check if it is an X or Y
		switch normalized {
		case "X":
			return true
		case "Y":
			return true
		}
	}

	return false
}

// Normalize strips a leading "chr" prefix and harmonizes
// case ("chrx" and "chrX" both become "X", "MT" becomes "M")
func Normalize(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(strings.ToLower(trimmed), "chr") {
		trimmed = trimmed[3:]
	}
	upper := strings.ToUpper(trimmed)
	if upper == "MT" {
		return "M"
	}
	switch upper {
	case "X", "Y", "M":
		return upper
	}
	return trimmed
}

// Rank gives each canonical chromosome a stable sort position
// (1..22, then X, then Y, then M); unknown identifiers sort last
func Rank(text string) int {
	normalized := Normalize(text)

	chromNumber, _ := strconv.Atoi(normalized)
	if chromNumber > 0 && chromNumber < 23 {
		return chromNumber
	}

	switch normalized {
	case "X":
		return 23
	case "Y":
		return 24
	case "M":
		return 25
	}

	return 99
}
