package encoding

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		wantNil bool
		wantErr bool
	}{
		{"", true, false},
		{"UTF-8", true, false},
		{"euc-kr", false, false},
		{"ISO-8859-1", false, false},
		{"no-such-charset", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := Lookup(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNil, enc == nil)
		})
	}
}

func TestNameDecoder_RoundTrip(t *testing.T) {
	d, err := NewNameDecoder(EUCKR)
	require.NoError(t, err)

	encoded := d.Encode("뼈대")
	assert.NotEqual(t, []byte("뼈대"), encoded)
	assert.Equal(t, "뼈대", d.Decode(append(encoded, 0, 0)))
}

func TestNameDecoder_UTF8(t *testing.T) {
	d, err := NewNameDecoder("")
	require.NoError(t, err)
	assert.Equal(t, "Bip01 Spine", d.Decode([]byte("Bip01 Spine\x00")))

	var nilDecoder *NameDecoder
	assert.Equal(t, "abc", nilDecoder.Decode([]byte("abc")))
}

func TestCharsetReader(t *testing.T) {
	// "café" in ISO-8859-1
	r, err := CharsetReader("ISO-8859-1", strings.NewReader("caf\xe9"))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "café", string(out))

	_, err = CharsetReader("bogus-charset", strings.NewReader(""))
	assert.Error(t, err)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`Models\Hero.DAE`, "models/hero.dae"},
		{"./a/B.smesh", "a/b.smesh"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in))
	}
}
