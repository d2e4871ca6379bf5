package captcha

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Candidate names one place a logical field may live in a response body:
// the object path from the root, then the field name inside that object.
type Candidate struct {
	Path []string
	Name string
}

func (c Candidate) String() string {
	if len(c.Path) == 0 {
		return c.Name
	}
	return strings.Join(c.Path, ".") + "." + c.Name
}

// FieldTable lists, per logical field, the candidates tried in priority
// order. The first present, non-empty candidate wins. Supporting another
// provider shape means editing the table, not the code.
type FieldTable struct {
	ID        []Candidate
	Image     []Candidate
	Count     []Candidate
	Label     []Candidate
	// CountFrom holds list fields whose length is the answer when no
	// direct count field is present.
	CountFrom []Candidate
}

// Candidates expands every name under every envelope path. Envelopes are the
// outer loop, so a deeper envelope listed first beats a shallower one.
func Candidates(envelopes [][]string, names ...string) []Candidate {
	out := make([]Candidate, 0, len(envelopes)*len(names))
	for _, env := range envelopes {
		for _, name := range names {
			out = append(out, Candidate{Path: env, Name: name})
		}
	}
	return out
}

var defaultEnvelopes = [][]string{{"data", "data"}, {"data"}, {}}

// DefaultFieldTable covers the flat {id,image,count,name} shape, the Spring
// {code,data:{questionId,imageBase64,chiralCount,moleculeName}} wrapper and
// the nested {data:{data:{cid,base64,regions}}} shape.
var DefaultFieldTable = FieldTable{
	ID:        Candidates(defaultEnvelopes, "questionId", "id", "cid", "uuid"),
	Image:     Candidates(defaultEnvelopes, "imageBase64", "image", "base64"),
	Count:     Candidates(defaultEnvelopes, "chiralCount", "count", "answer"),
	Label:     Candidates(defaultEnvelopes, "moleculeName", "name"),
	CountFrom: Candidates(defaultEnvelopes, "regions", "answers"),
}

// Normalize extracts a Question from a decoded response body. defaultCount
// is used only when no count signal exists at all; zero disables it and
// turns that case into ErrProviderMalformed.
func (t FieldTable) Normalize(body map[string]any, defaultCount int) (Question, error) {
	var q Question

	if v, _, ok := t.first(body, t.ID, asString); ok {
		q.ID = v.(string)
	}
	if v, _, ok := t.first(body, t.Label, asString); ok {
		q.Label = v.(string)
	}

	v, _, ok := t.first(body, t.Image, asString)
	if !ok {
		return Question{}, fmt.Errorf("%w: no image payload", ErrProviderMalformed)
	}
	q.Encoded = v.(string)
	img, err := DecodeImage(q.Encoded)
	if err != nil {
		return Question{}, fmt.Errorf("%w: %v", ErrProviderMalformed, err)
	}
	if len(img) == 0 {
		return Question{}, fmt.Errorf("%w: empty image payload", ErrProviderMalformed)
	}
	q.Image = img

	count, err := t.count(body, defaultCount)
	if err != nil {
		return Question{}, err
	}
	q.CorrectCount = count
	return q, nil
}

func (t FieldTable) count(body map[string]any, defaultCount int) (int, error) {
	for _, c := range t.Count {
		raw, ok := lookup(body, c)
		if !ok {
			continue
		}
		n, ok := asInt(raw)
		if !ok {
			return 0, fmt.Errorf("%w: %s is not an integer", ErrProviderMalformed, c)
		}
		if n < 0 {
			return 0, fmt.Errorf("%w: %s is negative", ErrProviderMalformed, c)
		}
		return n, nil
	}
	for _, c := range t.CountFrom {
		raw, ok := lookup(body, c)
		if !ok {
			continue
		}
		if list, ok := raw.([]any); ok {
			return len(list), nil
		}
	}
	if defaultCount > 0 {
		return defaultCount, nil
	}
	return 0, fmt.Errorf("%w: no chiral count signal", ErrProviderMalformed)
}

func (t FieldTable) first(body map[string]any, cands []Candidate, conv func(any) (any, bool)) (any, Candidate, bool) {
	for _, c := range cands {
		raw, ok := lookup(body, c)
		if !ok {
			continue
		}
		if v, ok := conv(raw); ok {
			return v, c, true
		}
	}
	return nil, Candidate{}, false
}

func lookup(body map[string]any, c Candidate) (any, bool) {
	cur := body
	for _, key := range c.Path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	v, ok := cur[c.Name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func asString(v any) (any, bool) {
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return nil, false
		}
		return s, true
	case json.Number:
		return s.String(), true
	}
	return nil, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
