package zstdjson

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refs struct {
	Products []string `json:"products"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := refs{Products: []string{"flour", "sugar", "salt"}}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out refs
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestCompress_ShrinksRepetitiveBodies(t *testing.T) {
	raw := bytes.Repeat([]byte(`{"id":1,"name":"product"},`), 500)

	data, err := Compress(raw)
	require.NoError(t, err)
	assert.Less(t, len(data), len(raw)/4)

	back, err := Decompress(data)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

func TestDecompress_Garbage(t *testing.T) {
	_, err := Decompress([]byte("not zstd"))
	assert.Error(t, err)
}

func TestAccepts(t *testing.T) {
	cases := map[string]bool{
		"":                     false,
		"gzip":                 false,
		"zstd":                 true,
		"gzip, zstd":           true,
		"br;q=1.0, ZSTD;q=0.9": true,
		"zstdx":                false,
	}
	for header, want := range cases {
		assert.Equal(t, want, Accepts(header), header)
	}
}
