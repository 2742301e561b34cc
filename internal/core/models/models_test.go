package models

import (
	"encoding/json"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-3))
	assert.Equal(t, 100.0, ClampScore(140))
	assert.Equal(t, 0.0, ClampScore(math.NaN()))
	assert.Equal(t, 42.5, ClampScore(42.5))
}

func TestRegionRect(t *testing.T) {
	r := Region{X: 10, Y: 20, W: 30, H: 40}
	assert.Equal(t, image.Rect(10, 20, 40, 60), r.Rect())
	assert.Equal(t, r, RegionFromRect(r.Rect()))
	assert.True(t, r.Valid())
	assert.False(t, Region{X: -1, Y: 0, W: 1, H: 1}.Valid())
	assert.False(t, Region{W: 0, H: 4}.Valid())
}

func TestDominant(t *testing.T) {
	res := &DetectionResult{Faces: []FaceResult{
		{Score: 20, Category: CategoryLow},
		{Score: 81, Category: CategoryHigh},
		{Score: 55, Category: CategoryMedium},
	}}
	best, ok := res.Dominant()
	require.True(t, ok)
	assert.Equal(t, 81.0, best.Score)

	_, ok = (&DetectionResult{}).Dominant()
	assert.False(t, ok)
}

func TestEncodedImageJSON(t *testing.T) {
	in := EncodedImage{MIME: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff, 0x00, 0x01}}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `"data:image/jpeg;base64,/9j/AAE="`, string(raw))

	var out EncodedImage
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestParseDataURI(t *testing.T) {
	mime, data, err := ParseDataURI("aGVsbG8=")
	require.NoError(t, err)
	assert.Empty(t, mime)
	assert.Equal(t, "hello", string(data))

	_, data, err = ParseDataURI("data:image/png;base64,aGVsbG8")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, _, err = ParseDataURI("data:image/png;base64")
	assert.Error(t, err)
	_, _, err = ParseDataURI("%%%")
	assert.Error(t, err)
}

func TestCategoryRankAndLabel(t *testing.T) {
	assert.Less(t, CategoryLow.Rank(), CategoryMedium.Rank())
	assert.Less(t, CategoryMedium.Rank(), CategoryHigh.Rank())
	assert.Equal(t, "MEDIUM", CategoryMedium.Label())
}
