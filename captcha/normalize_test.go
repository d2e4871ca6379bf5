package captcha

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var body map[string]any
	require.NoError(t, dec.Decode(&body))
	return body
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		id    string
		count int
		label string
	}{
		{
			name:  "flat",
			body:  `{"id":"a","image":"` + pngStub + `","count":4,"name":"Glucose"}`,
			id:    "a",
			count: 4,
			label: "Glucose",
		},
		{
			name:  "answer alias and string count",
			body:  `{"data":{"id":7,"image":"` + pngStub + `","answer":"2"}}`,
			id:    "7",
			count: 2,
		},
		{
			name:  "direct count beats regions",
			body:  `{"data":{"data":{"cid":"c","base64":"` + pngStub + `","count":5,"regions":["A1"]}}}`,
			id:    "c",
			count: 5,
		},
		{
			name:  "nested envelope beats root",
			body:  `{"id":"outer","data":{"data":{"cid":"inner","base64":"` + pngStub + `","regions":["A1","A2","B1"]}}}`,
			id:    "inner",
			count: 3,
		},
		{
			name:  "integral float count",
			body:  `{"image":"` + pngStub + `","chiralCount":2.0}`,
			count: 2,
		},
		{
			name:  "empty regions is zero",
			body:  `{"image":"` + pngStub + `","regions":[]}`,
			count: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := DefaultFieldTable.Normalize(decode(t, tt.body), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.id, q.ID)
			assert.Equal(t, tt.count, q.CorrectCount)
			assert.Equal(t, tt.label, q.Label)
			assert.NotEmpty(t, q.Image)
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	tests := map[string]string{
		"no image":         `{"id":"a","count":2}`,
		"blank image":      `{"id":"a","image":"   ","count":2}`,
		"bad base64":       `{"image":"!!!not-base64!!!","count":2}`,
		"no count signal":  `{"image":"` + pngStub + `"}`,
		"negative count":   `{"image":"` + pngStub + `","count":-1}`,
		"fractional count": `{"image":"` + pngStub + `","count":1.5}`,
		"word count":       `{"image":"` + pngStub + `","count":"two"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DefaultFieldTable.Normalize(decode(t, body), 0)
			require.ErrorIs(t, err, ErrProviderMalformed)
		})
	}
}

func TestNormalize_LegacyDefaultCount(t *testing.T) {
	q, err := DefaultFieldTable.Normalize(decode(t, `{"image":"`+pngStub+`"}`), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, q.CorrectCount)
}

func TestNormalize_CustomTable(t *testing.T) {
	table := FieldTable{
		ID:    []Candidate{{Path: []string{"result"}, Name: "ticket"}},
		Image: []Candidate{{Path: []string{"result"}, Name: "png"}},
		Count: []Candidate{{Path: []string{"result"}, Name: "n"}},
	}
	q, err := table.Normalize(decode(t, `{"result":{"ticket":"t-9","png":"`+pngStub+`","n":6}}`), 0)
	require.NoError(t, err)
	assert.Equal(t, "t-9", q.ID)
	assert.Equal(t, 6, q.CorrectCount)
}

func TestDecodeImage(t *testing.T) {
	want := []byte("\x89PNG\r\n\x1a\nstub")

	got, err := DecodeImage("data:image/png;base64," + pngStub)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = DecodeImage(StripDataURI(pngStub))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeImage("")
	assert.Error(t, err)
}

func TestCandidateString(t *testing.T) {
	assert.Equal(t, "data.data.cid", Candidate{Path: []string{"data", "data"}, Name: "cid"}.String())
	assert.Equal(t, "id", Candidate{Name: "id"}.String())
}
