package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueName(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	assert.Equal(t, "sunset-poster_42_20240309_140507.zip", UniqueName("sunset-poster.zip", 42, now))
	assert.Equal(t, "README_7_20240309_140507", UniqueName("README", 7, now))
	assert.Equal(t, "evil_1_20240309_140507.zip", UniqueName("../../evil.zip", 1, now))
	assert.Equal(t, "resource_1_20240309_140507", UniqueName("", 1, now))
	assert.Equal(t, "resource_1_20240309_140507.zip", UniqueName(".zip", 1, now))
}

func TestOriginalStem(t *testing.T) {
	assert.Equal(t, "sunset-poster", OriginalStem("downloads/user_42/sunset-poster_42_20240309_140507.zip"))
	assert.Equal(t, "sunset-poster", OriginalStem("sunset-poster.zip"))
	assert.Equal(t, "", OriginalStem(""))
}

func TestUserDir(t *testing.T) {
	assert.Equal(t, filepath.Join("downloads", "user_42"), UserDir("downloads", 42))
}

func TestSearchTerms(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want []string
	}{
		{
			name: "query parameter",
			url:  "https://www.freepik.com/search?format=search&query=sunset+beach+poster&type=vector",
			want: []string{"sunset", "beach", "poster"},
		},
		{
			name: "slug before id",
			url:  "https://www.freepik.com/free-vector/hand-drawn-flat-design-sale-banner_12345678.htm",
			want: []string{"hand", "drawn", "flat", "design", "sale"},
		},
		{
			name: "short and stop words dropped",
			url:  "https://www.freepik.com/premium-photo/free-photo-of-a-red-vintage-car_998.htm",
			want: []string{"vintage"},
		},
		{
			name: "no underscore",
			url:  "https://www.freepik.com/premium-vector/abstract/watercolor-texture",
			want: []string{"premium", "abstract", "watercolor", "texture"},
		},
		{
			name: "nothing usable",
			url:  "https://www.freepik.com/",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SearchTerms(tt.url))
		})
	}
}

func TestLicenseRowMatching(t *testing.T) {
	rows := []string{
		"<th>Name</th><th>Actions</th>",
		`<td>watercolor-floral-frame.zip</td><td><button>Download license</button></td>`,
		`<td>Sunset-Beach-Poster.zip</td><td><button>Download license</button></td>`,
		`<td>beach-party-flyer.zip</td><td><button>License</button></td>`,
	}

	assert.Equal(t, 2, exactRow(rows, "sunset-beach-poster"))
	assert.Equal(t, -1, exactRow(rows, "mountain-poster"))
	assert.Equal(t, -1, exactRow(rows, ""))

	// two tokens hit row 2, one hits row 3
	assert.Equal(t, 2, fuzzyRow(rows, "beach-sunset-banner"))
	assert.Equal(t, 3, fuzzyRow(rows, "flyer_party"))
	assert.Equal(t, -1, fuzzyRow(rows, "cat-dog"))

	assert.Equal(t, 1, latestLicenseRow(rows))
	assert.Equal(t, -1, latestLicenseRow(rows[:1]))
}

func TestMoveFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "guid-123")
	require.NoError(t, os.WriteFile(src, []byte("zipdata"), 0o644))
	dir := filepath.Join(t.TempDir(), "user_42")

	dst, err := moveFile(src, dir, "poster_42_20240309_140507.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "poster_42_20240309_140507.zip"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}
