package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
)

func key(dataset, id string, year int) record.Key {
	return record.Key{Dataset: dataset, LocalID: id, Year: year}
}

func TestReadRecords(t *testing.T) {
	input := strings.Join([]string{
		"Name,Dataset,Report_Year,local_id,capacity_mw,state,entity_type,fuel",
		`"Riverside Generating Station",eia,2020,101,"1,250.5",TX,plant,Natural Gas`,
		"Lakeview,ferc,2020,f7,n/a,OH,,",
		"No Key,,2020,x,10,TX,plant,",
		"Bad Year,eia,twenty,102,10,TX,plant,",
		"Odd Type,eia,2021,103,-5,TX,substation,",
		"Short Row,eia,2021,104",
	}, "\n")

	records, stats, err := ReadRecords(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, ReadStats{Rows: 6, Imported: 4, Skipped: 2, Degraded: 2}, stats)
	require.Len(t, records, 4)

	r := records[0]
	assert.Equal(t, key("eia", "101", 2020), r.Key)
	assert.Equal(t, "Riverside Generating Station", r.Name)
	require.NotNil(t, r.Capacity)
	assert.InDelta(t, 1250.5, *r.Capacity, 1e-9)
	assert.Equal(t, "Natural Gas", r.FuelType)
	assert.Equal(t, record.EntityPlant, r.Type)

	assert.Nil(t, records[1].Capacity)
	assert.Equal(t, record.EntityPlant, records[1].Type)

	assert.Equal(t, record.EntityType("substation"), records[2].Type)
	assert.Nil(t, records[2].Capacity)

	assert.Equal(t, "Short Row", records[3].Name)
	assert.Empty(t, records[3].State)
}

func TestReadRecordsHeaderErrors(t *testing.T) {
	_, _, err := ReadRecords(strings.NewReader("dataset,name\neia,x\n"))
	assert.ErrorContains(t, err, "year")

	_, _, err = ReadRecords(strings.NewReader("dataset,year,local_id,year\n"))
	assert.ErrorContains(t, err, "duplicate")

	records, stats, err := ReadRecords(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, stats.Rows)
}

func TestWriteRecordsReadsBack(t *testing.T) {
	c := 42.0
	in := []record.RawRecord{
		{Key: key("eia", "1", 2020), Type: record.EntityGenerator, Name: "Unit 1, North", Capacity: &c, State: "TX"},
		{Key: key("ferc", "u2", 2021), Type: record.EntityUtility, Name: "Acme", OwnerID: "u2"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, in))

	out, stats, err := ReadRecords(&buf)
	require.NoError(t, err)
	assert.Zero(t, stats.Skipped)
	assert.Equal(t, in, out)
}

func TestLinkageTableIsByteStable(t *testing.T) {
	rows := func() []record.LinkageRow {
		return []record.LinkageRow{
			{Key: key("ferc", "f1", 2020), Type: record.EntityPlant, EntityID: 1},
			{Key: key("eia", "1", 2021), Type: record.EntityPlant, EntityID: 1},
			{Key: key("eia", "1", 2020), Type: record.EntityPlant, EntityID: 1},
			{Key: key("eia", "2", 2020), Type: record.EntityUnit, EntityID: 2},
		}
	}
	var a, b bytes.Buffer
	require.NoError(t, WriteLinkageTable(&a, record.NewLinkageTable(rows())))

	shuffled := rows()
	shuffled[0], shuffled[3] = shuffled[3], shuffled[0]
	require.NoError(t, WriteLinkageTable(&b, &record.LinkageTable{Rows: shuffled}))
	assert.Equal(t, a.String(), b.String())

	lines := strings.Split(strings.TrimSpace(a.String()), "\n")
	assert.Equal(t, "dataset,year,local_id,entity_type,entity_id", lines[0])
	assert.Equal(t, "eia,2020,1,plant,1", lines[1])

	table, err := ReadLinkageTable(&a)
	require.NoError(t, err)
	assert.Equal(t, record.NewLinkageTable(rows()).Rows, table.Rows)
}

func TestReadLinkageTableRejectsBadRows(t *testing.T) {
	header := "dataset,year,local_id,entity_type,entity_id\n"
	for name, body := range map[string]string{
		"bad id":        "eia,2020,1,plant,zero\n",
		"non-positive":  "eia,2020,1,plant,0\n",
		"bad year":      "eia,x,1,plant,1\n",
		"duplicate key": "eia,2020,1,plant,1\neia,2020,1,plant,2\n",
		"short row":     "eia,2020\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadLinkageTable(strings.NewReader(header + body))
			assert.Error(t, err)
		})
	}
}

func TestWriteScores(t *testing.T) {
	s1 := match.Score{Pair: match.Pair{A: key("eia", "2", 2020), B: key("ferc", "f2", 2020), Type: record.EntityPlant}, Confidence: 0.5, Threshold: 0.8, Reason: match.ReasonBelowThreshold}
	s2 := match.Score{Pair: match.Pair{A: key("eia", "1", 2020), B: key("ferc", "f1", 2020), Type: record.EntityPlant}, Confidence: 0.912345678, Threshold: 0.8, Accepted: true, Reason: match.ReasonAccepted}
	s2.Features[match.FeatJaroWinkler] = 1

	var buf bytes.Buffer
	require.NoError(t, WriteScores(&buf, []linkage.ScoredPair{
		{Stage: linkage.StageCrossDataset, Score: s1},
		{Stage: linkage.StageCrossDataset, Score: s2},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(ScoreColumns(), ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "cross_dataset,eia,2020,1,ferc,2020,f1,plant,0.912346,0.800000,true,accepted,1.000000,"))
	assert.Contains(t, lines[2], ",false,below_threshold,")
}

func TestOverridesRoundTrip(t *testing.T) {
	in := []match.Override{
		{A: key("ferc", "f1", 2020), B: key("eia", "1", 2020), Kind: match.MustLink, Reason: "same site, renamed", Reviewer: "qa1"},
		{A: key("eia", "1", 2020), B: key("eia", "3", 2020), Kind: match.CannotLink},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteOverrides(&buf, in))

	out, err := ReadOverrides(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, match.CannotLink, out[0].Kind)
	assert.Equal(t, "same site, renamed", out[1].Reason)
	assert.Equal(t, in[0], out[1])
}

func TestReadOverridesOptionalColumns(t *testing.T) {
	input := "a_dataset,a_year,a_local_id,b_dataset,b_year,b_local_id,kind\n" +
		"eia,2020,1,ferc,2020,f1,MUST_LINK\n"
	out, err := ReadOverrides(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, match.MustLink, out[0].Kind)
	assert.Empty(t, out[0].Reviewer)

	_, err = ReadOverrides(strings.NewReader("a_dataset,a_year,a_local_id,b_dataset,b_year,b_local_id,kind\neia,2020,1,ferc,2020,f1,maybe\n"))
	assert.Error(t, err)
}

func TestReadScoresRoundTrip(t *testing.T) {
	s := match.Score{Pair: match.Pair{A: key("eia", "1", 2020), B: key("ferc", "f1", 2020), Type: record.EntityPlant}, Confidence: 0.875, Threshold: 0.8, Accepted: true, Reason: match.ReasonAccepted}
	s.Features[match.FeatJaroWinkler] = 0.5
	s.Features[match.FeatMissing] = 2
	in := []linkage.ScoredPair{{Stage: linkage.StageCrossDataset, Score: s}}

	var buf bytes.Buffer
	require.NoError(t, WriteScores(&buf, in))
	out, err := ReadScores(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ReadScores(strings.NewReader("stage,a_dataset\nx,y\n"))
	assert.Error(t, err)
}

func TestReadRecordsBlankNameDegrades(t *testing.T) {
	input := strings.Join([]string{
		"dataset,year,local_id,name",
		"eia,2020,1,Riverside",
		"eia,2020,2,",
		"eia,2020,3, -- ",
	}, "\n")

	records, stats, err := ReadRecords(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, records, 3, "blank names are kept")
	assert.Equal(t, ReadStats{Rows: 3, Imported: 3, Degraded: 2}, stats)
	assert.Equal(t, "--", records[2].Name)
}
