package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "DraftKings",
			expected: []string{"DraftKings"},
		},
		{
			name:     "two values",
			input:    "DraftKings, FanDuel",
			expected: []string{"DraftKings", "FanDuel"},
		},
		{
			name:     "three values with varied spacing",
			input:    "Circa,  BetMGM , Caesars",
			expected: []string{"Circa", "BetMGM", "Caesars"},
		},
		{
			name:     "no spaces after comma",
			input:    "DraftKings,FanDuel",
			expected: []string{"DraftKings", "FanDuel"},
		},
		{
			name:     "trailing comma",
			input:    "DraftKings,",
			expected: []string{"DraftKings"},
		},
		{
			name:     "leading comma",
			input:    ",FanDuel",
			expected: []string{"FanDuel"},
		},
		{
			name:     "only spaces",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "comma only",
			input:    ",",
			expected: nil,
		},
		{
			name:     "multiple commas",
			input:    ",,DraftKings,,FanDuel,,",
			expected: []string{"DraftKings", "FanDuel"},
		},
		{
			name:     "value with internal spaces preserved",
			input:    "Bet Rivers, Points Bet",
			expected: []string{"Bet Rivers", "Points Bet"},
		},
		{
			name:     "mixed spacing around values",
			input:    "  Circa  ,  BetMGM  ",
			expected: []string{"Circa", "BetMGM"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseCSV(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseCSV_Idempotent(t *testing.T) {
	input := "DraftKings"
	firstParse := ParseCSV(input)
	assert.Equal(t, []string{"DraftKings"}, firstParse)

	if len(firstParse) > 0 {
		secondParse := ParseCSV(firstParse[0])
		assert.Equal(t, []string{"DraftKings"}, secondParse)
	}
}

func TestParseCSV_PreservesInput(t *testing.T) {
	input := "DraftKings, FanDuel"
	originalInput := input

	_ = ParseCSV(input)

	assert.Equal(t, originalInput, input, "input should not be modified")
}

func TestParseCSV_RealWorldExamples(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "single book",
			input:    "DraftKings",
			expected: []string{"DraftKings"},
		},
		{
			name:     "sharp book pool",
			input:    "Circa, BetMGM, Pinnacle",
			expected: []string{"Circa", "BetMGM", "Pinnacle"},
		},
		{
			name:     "retail book pool",
			input:    "FanDuel, DraftKings, BetRivers",
			expected: []string{"FanDuel", "DraftKings", "BetRivers"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseCSV(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
