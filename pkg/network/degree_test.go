package network

import (
	"testing"

	"github.com/mchmarny/claimq/pkg/claim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *claim.Table {
	t.Helper()
	tbl, err := claim.NewTable(
		[]string{ZipColumn, CityColumn, MakeColumn},
		[][]string{
			{"100", "Columbus", "Saab"},
			{"100", "Arlington", "Saab"},
			{"200", "Columbus", "Dodge"},
			{"", "", ""},
		},
	)
	require.NoError(t, err)
	return tbl
}

func TestDegreeIndex(t *testing.T) {
	idx := NewDegreeIndex(testTable(t))

	// ZIP_100, ZIP_200, CITY_Columbus, CITY_Arlington, MAKE_Saab, MAKE_Dodge, MAKE_UNKNOWN
	assert.Equal(t, 7, idx.Nodes())

	assert.Equal(t, 1, idx.Degree("ZIP_100"))
	assert.Equal(t, 1, idx.Degree("ZIP_200"))
	assert.Equal(t, 2, idx.Degree("CITY_Columbus"))
	assert.Equal(t, 1, idx.Degree("CITY_Arlington"))
	assert.Equal(t, 3, idx.Degree("MAKE_Saab"))
	assert.Equal(t, 2, idx.Degree("MAKE_Dodge"))
	assert.Equal(t, 0, idx.Degree("MAKE_UNKNOWN"))
	assert.Equal(t, 0, idx.Degree("ZIP_999"))
}

func TestDegreeIndex_Score(t *testing.T) {
	tbl := testTable(t)
	got := NewDegreeIndex(tbl).Score(tbl)
	assert.Equal(t, []float64{
		1 + 2 + 3,
		1 + 1 + 3,
		1 + 2 + 2,
		0,
	}, got)
}

func TestDegreeIndex_MissingColumns(t *testing.T) {
	tbl, err := claim.NewTable([]string{"policy_number"}, [][]string{{"a"}, {"b"}})
	require.NoError(t, err)

	idx := NewDegreeIndex(tbl)
	assert.Equal(t, 1, idx.Nodes())
	assert.Equal(t, []float64{0, 0}, idx.Score(tbl))
}

func TestDegreeIndex_Empty(t *testing.T) {
	tbl, err := claim.NewTable([]string{MakeColumn}, nil)
	require.NoError(t, err)
	idx := NewDegreeIndex(tbl)
	assert.Zero(t, idx.Nodes())
	assert.Empty(t, idx.Score(tbl))
}
