package favorite

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in      string
		want    EntityType
		wantErr bool
	}{
		{"artist", EntityArtist, false},
		{"Artists", EntityArtist, false},
		{" concert ", EntityConcert, false},
		{"concerts", EntityConcert, false},
		{"venue", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntityType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEntityType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTarget(t *testing.T) {
	t.Run("parses type and id", func(t *testing.T) {
		target, err := ParseTarget("artist/42")
		require.NoError(t, err)
		assert.Equal(t, ArtistTarget(42), target)
		assert.Equal(t, "artist/42", target.String())
	})

	t.Run("rejects missing separator", func(t *testing.T) {
		_, err := ParseTarget("artist42")
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})

	t.Run("rejects non-positive ids", func(t *testing.T) {
		_, err := NewTarget("concert", "0")
		assert.ErrorIs(t, err, ErrInvalidTarget)

		_, err = NewTarget("concert", "abc")
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})
}

func TestRecord_Validate(t *testing.T) {
	assert.NoError(t, NewArtistRecord(1, 2).Validate())
	assert.NoError(t, NewConcertRecord(1, 2).Validate())
	assert.ErrorIs(t, Record{FavoriteID: 1}.Validate(), ErrInvalidRecord)

	both := Record{FavoriteID: 1, ArtistID: int64Ptr(2), ConcertID: int64Ptr(3)}
	assert.ErrorIs(t, both.Validate(), ErrInvalidRecord)
	assert.Equal(t, Target{}, both.Target())
}

func TestRecord_JSON(t *testing.T) {
	t.Run("decodes the API payload", func(t *testing.T) {
		var rec Record
		err := json.Unmarshal([]byte(`{"favoriteId":7,"artistId":42,"concertId":null}`), &rec)
		require.NoError(t, err)

		assert.Equal(t, int64(7), rec.FavoriteID)
		assert.Equal(t, ArtistTarget(42), rec.Target())
		assert.Nil(t, rec.ConcertID)
	})

	t.Run("omits zero created time", func(t *testing.T) {
		data, err := json.Marshal(NewConcertRecord(3, 9))
		require.NoError(t, err)
		assert.JSONEq(t, `{"favoriteId":3,"artistId":null,"concertId":9}`, string(data))
	})
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord(ConcertTarget(9), 3)
	assert.Equal(t, EntityConcert, rec.Type())
	assert.Equal(t, ConcertTarget(9), rec.Target())

	crit := CriteriaFor(ConcertTarget(9))
	require.NotNil(t, crit.ConcertID)
	assert.Nil(t, crit.ArtistID)
	assert.Equal(t, int64(9), *crit.ConcertID)
}
