package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmcleod/chiralgate/captcha"
)

func TestEvaluate(t *testing.T) {
	q := captcha.Question{ID: "q", CorrectCount: 2, Label: "Threonine"}

	tests := []struct {
		name     string
		input    string
		correct  bool
		contains []string
	}{
		{name: "exact", input: "2", correct: true, contains: []string{"Threonine", "2"}},
		{name: "surrounding whitespace", input: "  2\n", correct: true},
		{name: "full width digit", input: "２", correct: true},
		{name: "explicit plus sign", input: "+2", correct: true},
		{name: "wrong number", input: "3", contains: []string{"Your answer: 3", "correct answer: 2"}},
		{name: "non numeric", input: "abc", contains: []string{`"abc"`, "correct answer: 2"}},
		{name: "empty", input: "", contains: []string{"correct answer: 2"}},
		{name: "float", input: "2.0"},
		{name: "hex", input: "0x2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			correct, msg := Evaluate(q, tt.input)
			assert.Equal(t, tt.correct, correct)
			assert.NotEmpty(t, msg)
			for _, s := range tt.contains {
				assert.Contains(t, msg, s)
			}
		})
	}
}

func TestEvaluate_NoLabel(t *testing.T) {
	ok, msg := Evaluate(captcha.Question{CorrectCount: 0}, "0")
	assert.True(t, ok)
	assert.Contains(t, msg, "This molecule has 0")
}

func TestLooksNumeric(t *testing.T) {
	assert.True(t, LooksNumeric("12"))
	assert.True(t, LooksNumeric(" ３ "))
	assert.False(t, LooksNumeric(""))
	assert.False(t, LooksNumeric("-1"))
	assert.False(t, LooksNumeric("hello 2"))
}

func TestParse(t *testing.T) {
	n, ok := Parse("０７")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = Parse("seven")
	assert.False(t, ok)
}
