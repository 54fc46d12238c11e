package disks_test

import (
	"testing"

	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/disks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogParses(t *testing.T) {
	profiles, err := disks.ListProfiles()
	require.NoError(t, err)
	require.NotEmpty(t, profiles)

	seen := map[string]bool{}
	for _, profile := range profiles {
		assert.NotEmpty(t, profile.Slug)
		assert.False(t, seen[profile.Slug], "duplicate slug %q", profile.Slug)
		seen[profile.Slug] = true

		assert.NoError(t, profile.Geometry().Validate(),
			"profile %q has an unusable geometry", profile.Slug)
		assert.EqualValues(
			t,
			int64(profile.TotalBlocks)*int64(profile.BlockSize),
			profile.TotalSizeBytes())
	}
}

func TestGetProfile(t *testing.T) {
	profile, err := disks.GetProfile("standard")
	require.NoError(t, err)
	assert.EqualValues(t, 8192, profile.TotalBlocks)
	assert.EqualValues(t, 512, profile.BlockSize)

	// Lookup is case-insensitive.
	upper, err := disks.GetProfile("STANDARD")
	require.NoError(t, err)
	assert.Equal(t, profile, upper)

	_, err = disks.GetProfile("floppy")
	assert.ErrorIs(t, err, carve.ErrNotFound)
}
