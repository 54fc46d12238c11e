// Package disks holds a small catalog of preset image geometries, so users
// can format an image by name instead of picking raw block counts. The
// catalog ships as an embedded CSV file.
package disks

import (
	_ "embed"
	"fmt"
	"strings"

	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/file_systems/mapfs"
	"github.com/gocarina/gocsv"
)

//go:embed profiles.csv
var profilesCSV []byte

// ImageProfile describes one preset geometry from the catalog.
type ImageProfile struct {
	Name        string `csv:"name"`
	Slug        string `csv:"slug"`
	TotalBlocks uint32 `csv:"total_blocks"`
	BlockSize   uint32 `csv:"block_size"`
	TotalInodes uint32 `csv:"total_inodes"`
	Notes       string `csv:"notes"`
}

// Geometry converts the profile into the format parameters the file system
// consumes.
func (profile ImageProfile) Geometry() mapfs.Geometry {
	return mapfs.Geometry{
		TotalBlocks: profile.TotalBlocks,
		TotalInodes: profile.TotalInodes,
		BlockSize:   profile.BlockSize,
	}
}

// TotalSizeBytes gives the size of the image file the profile describes.
func (profile ImageProfile) TotalSizeBytes() int64 {
	return profile.Geometry().TotalSizeBytes()
}

// ListProfiles returns every profile in the catalog, in file order.
func ListProfiles() ([]ImageProfile, error) {
	var profiles []ImageProfile
	if err := gocsv.UnmarshalBytes(profilesCSV, &profiles); err != nil {
		return nil, carve.ErrInvalidArgument.WithMessage(
			"embedded profile catalog is malformed").Wrap(err)
	}
	return profiles, nil
}

// GetProfile looks a profile up by its slug, case-insensitively.
func GetProfile(slug string) (ImageProfile, error) {
	profiles, err := ListProfiles()
	if err != nil {
		return ImageProfile{}, err
	}

	for _, profile := range profiles {
		if strings.EqualFold(profile.Slug, slug) {
			return profile, nil
		}
	}

	known := make([]string, len(profiles))
	for i, profile := range profiles {
		known[i] = profile.Slug
	}
	return ImageProfile{}, carve.ErrNotFound.WithMessage(
		fmt.Sprintf("no image profile named %q; known profiles: %s",
			slug, strings.Join(known, ", ")))
}
