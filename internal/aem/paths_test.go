package aem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/content/dam/x/y.jpg", "x/y.jpg"},
		{"/content/dam/x/", "x"},
		{"/content/dam", ""},
		{"/content/dam/", ""},
		{"/x/y", "x/y"},
		{"x/y/", "x/y"},
		{"/", ""},
		{"", ""},
		{"//x//", "x"},
		{"/content/damage/x", "content/damage/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizePath(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizePath(got), "normalization must be idempotent")
		})
	}
}

func TestDAMPath(t *testing.T) {
	assert.Equal(t, "/content/dam", DAMPath("/"))
	assert.Equal(t, "/content/dam/a/b", DAMPath("a/b"))
	assert.Equal(t, "/content/dam/a/b", DAMPath("/content/dam/a/b/"))
}

func TestClassicURL(t *testing.T) {
	base := "https://author.example.com"
	assert.Equal(t, base+"/api/assets.json", ClassicURL(base, "/"))
	assert.Equal(t, base+"/api/assets/x/y.json", ClassicURL(base, "/content/dam/x/y"))
	assert.Equal(t, base+"/api/assets/my%20folder/a.jpg.json", ClassicURL(base, "my folder/a.jpg"))
	assert.Equal(t, base+"/api/assets/x/y.jpg", classicItemURL(base, "/content/dam/x/y.jpg"))
	assert.Equal(t, base+"/api/assets", classicItemURL(base, ""))
}
