package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionListBareArray(t *testing.T) {
	var r RegionList
	require.NoError(t, json.Unmarshal([]byte(`["London","Scotland"]`), &r))
	assert.Equal(t, RegionList{"London", "Scotland"}, r)
}

func TestRegionListWrappedObject(t *testing.T) {
	var r RegionList
	require.NoError(t, json.Unmarshal([]byte(`{"regions":["Wales"]}`), &r))
	assert.Equal(t, RegionList{"Wales"}, r)
}

func TestRegionListScan(t *testing.T) {
	var r RegionList
	require.NoError(t, r.Scan([]byte(`{"regions":["North East"]}`)))
	assert.Equal(t, RegionList{"North East"}, r)

	require.NoError(t, r.Scan(nil))
	assert.Nil(t, r)
}

func TestNoticeValidate(t *testing.T) {
	valid := Notice{
		OCID:            "ocds-1",
		Title:           "A title",
		PublicationDate: time.Now(),
	}
	require.NoError(t, valid.Validate())

	missingOCID := valid
	missingOCID.OCID = ""
	assert.ErrorIs(t, missingOCID.Validate(), ErrValidation)

	emptyTitle := valid
	emptyTitle.Title = ""
	assert.ErrorIs(t, emptyTitle.Validate(), ErrValidation)

	negative := valid
	d := decimal.NewFromInt(-1)
	negative.ValueAmount = &d
	assert.ErrorIs(t, negative.Validate(), ErrValidation)

	badVector := valid
	badVector.Embedding = make([]float32, 12)
	assert.ErrorIs(t, badVector.Validate(), ErrValidation)

	fullVector := valid
	fullVector.Embedding = make([]float32, EmbeddingDim)
	require.NoError(t, fullVector.Validate())
}

func TestJSONMapRoundTrip(t *testing.T) {
	m := JSONMap{"tender": map[string]any{"title": "x"}}
	v, err := m.Value()
	require.NoError(t, err)

	var back JSONMap
	require.NoError(t, back.Scan(v))
	assert.Equal(t, "x", back["tender"].(map[string]any)["title"])
}
