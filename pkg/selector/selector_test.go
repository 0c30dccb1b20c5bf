package selector

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ewhitman/davit/pkg/datatype"
	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parseChoicesTest struct {
	input  string
	max    int
	output []int
	isErr  bool
}

var parseChoicesTests = []parseChoicesTest{
	{"1,5,7", 7, []int{1, 5, 7}, false},
	{"1-5", 5, []int{1, 2, 3, 4, 5}, false},
	{"1-3, 5", 5, []int{1, 2, 3, 5}, false},
	{"3,3,3", 3, []int{3}, false},
	{" 2 ", 3, []int{2}, false},
	{"0", 3, nil, true},
	{"4", 3, nil, true},
	{"8-5", 9, nil, true},
	{"a,b", 3, nil, true},
	{"1-x", 3, nil, true},
}

func TestParseChoices(t *testing.T) {
	for _, v := range parseChoicesTests {
		got, err := parseChoices(v.input, v.max)
		assert.Equal(t, v.isErr, err != nil, v.input)
		if !v.isErr {
			assert.Equal(t, v.output, got, v.input)
		}
	}
}

func candidateRecord(id string, size int64) *record.Record {
	rec := record.New(id, "2023-05-01", "/incoming/2023-05-01/RR2214_"+id+"_v1.tar.gz", "run1")
	rec.CruiseID = "RR2214"
	rec.InstrumentName = "Kongsberg EM122"
	rec.SizeBytes = size
	return rec
}

func TestCandidatesRespectBudget(t *testing.T) {
	recs := []*record.Record{
		candidateRecord("1", 100),
		candidateRecord("2", 200),
		candidateRecord("3", 300),
	}

	got := Candidates(recs, 350)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].FilesetID)
	assert.Equal(t, "2", got[1].FilesetID)
}

func TestCandidatesZeroBudget(t *testing.T) {
	recs := []*record.Record{candidateRecord("1", 100)}
	assert.Empty(t, Candidates(recs, 0))
}

func TestPromptDataType(t *testing.T) {
	var out bytes.Buffer
	s := New(strings.NewReader("2\n"), &out, log.NewNopLogger())

	dt, err := s.PromptDataType()
	require.NoError(t, err)
	assert.Equal(t, datatype.GroupMultibeam, dt)
}

func TestPromptDataTypeDefault(t *testing.T) {
	var out bytes.Buffer
	s := New(strings.NewReader("\n"), &out, log.NewNopLogger())

	dt, err := s.PromptDataType()
	require.NoError(t, err)
	assert.Equal(t, datatype.GroupWCSD, dt)
}

func TestPromptDataTypeRepromptsOnInvalid(t *testing.T) {
	var out bytes.Buffer
	s := New(strings.NewReader("9\n3\n"), &out, log.NewNopLogger())

	dt, err := s.PromptDataType()
	require.NoError(t, err)
	assert.Equal(t, datatype.GroupTrackline, dt)
	assert.Contains(t, out.String(), "invalid")
}

func TestPromptPackages(t *testing.T) {
	recs := []*record.Record{
		candidateRecord("1", 100),
		candidateRecord("2", 200),
		candidateRecord("3", 300),
	}

	var out bytes.Buffer
	s := New(strings.NewReader("1,3\n"), &out, log.NewNopLogger())

	picked, err := s.PromptPackages(recs)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "1", picked[0].FilesetID)
	assert.Equal(t, "3", picked[1].FilesetID)
	assert.Contains(t, out.String(), "Total Requested Data Size")
}

func TestPromptPackagesEmptySelection(t *testing.T) {
	recs := []*record.Record{candidateRecord("1", 100)}

	var out bytes.Buffer
	s := New(strings.NewReader("\n"), &out, log.NewNopLogger())

	picked, err := s.PromptPackages(recs)
	require.NoError(t, err)
	assert.Empty(t, picked)
}

func TestPromptPackagesNoCandidates(t *testing.T) {
	var out bytes.Buffer
	s := New(strings.NewReader(""), &out, log.NewNopLogger())

	picked, err := s.PromptPackages(nil)
	require.NoError(t, err)
	assert.Empty(t, picked)
	assert.Contains(t, out.String(), "did not return any results")
}
