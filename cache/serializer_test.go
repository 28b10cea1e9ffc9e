package cache

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializers_RoundTrip(t *testing.T) {
	encrypting, err := NewEncryptingSerializer(NewCompressingSerializer(nil, 16), bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	serializers := map[string]Serializer{
		"msgpack":          MsgpackSerializer{},
		"json":             JSONSerializer{},
		"compressing":      NewCompressingSerializer(nil, 16),
		"compressing-json": NewCompressingSerializer(JSONSerializer{}, 16),
		"encrypting":       encrypting,
	}
	payloads := map[string]any{
		"below threshold": "short",
		"above threshold": strings.Repeat("payload-", 64),
		"map":             map[string]any{"name": "ada", "tags": []any{"a", "b"}},
	}

	for sname, s := range serializers {
		for pname, p := range payloads {
			t.Run(sname+"/"+pname, func(t *testing.T) {
				data, err := s.Serialize(p)
				require.NoError(t, err)
				got, err := s.Deserialize(data)
				require.NoError(t, err)
				assert.Equal(t, p, got)
			})
		}
	}
}

func TestCompressingSerializer_Threshold(t *testing.T) {
	s := NewCompressingSerializer(nil, 32)

	small, err := s.Serialize("x")
	require.NoError(t, err)
	assert.Equal(t, flagPlain, small[0])

	large, err := s.Serialize(strings.Repeat("y", 500))
	require.NoError(t, err)
	assert.Equal(t, flagGzipped, large[0])
	assert.Less(t, len(large), 500)
}

func TestCompressingSerializer_CorruptBody(t *testing.T) {
	s := NewCompressingSerializer(nil, 1)

	_, err := s.Deserialize([]byte{flagGzipped, 'n', 'o', 'p', 'e'})
	assert.ErrorIs(t, err, ErrDecompression)

	_, err = s.Deserialize(nil)
	assert.Error(t, err)

	_, err = s.Deserialize([]byte{9, 1})
	assert.Error(t, err)
}

func TestEncryptingSerializer(t *testing.T) {
	_, err := NewEncryptingSerializer(nil, []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidEncryptionKey)

	s, err := NewEncryptingSerializer(nil, bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)

	a, err := s.Serialize("same")
	require.NoError(t, err)
	b, err := s.Serialize("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonces must differ")

	a[len(a)-1] ^= 0xff
	_, err = s.Deserialize(a)
	assert.Error(t, err)

	_, err = s.Deserialize([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	type profile struct {
		Name string
		Age  int
	}

	ser := MsgpackSerializer{}
	data, err := ser.Serialize(profile{Name: "ada", Age: 36})
	require.NoError(t, err)
	generic, err := ser.Deserialize(data)
	require.NoError(t, err)

	got, err := Decode[profile](generic)
	require.NoError(t, err)
	assert.Equal(t, profile{Name: "ada", Age: 36}, got)

	s, err := Decode[string]("direct")
	require.NoError(t, err)
	assert.Equal(t, "direct", s)

	n, err := Decode[int](int8(5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	zero, err := Decode[profile](nil)
	require.NoError(t, err)
	assert.Equal(t, profile{}, zero)

	_, err = Decode[int]("not a number")
	assert.ErrorIs(t, err, ErrSerialization)
}
