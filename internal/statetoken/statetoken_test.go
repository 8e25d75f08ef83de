package statetoken

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"U1", "O1"},
		{"3f2b6c1e-8a7d-4e55-9c0a-1b2c3d4e5f60", "b0d1e2f3-0000-4111-8222-333344445555"},
		{"user@example.com", "org_42"},
		{"u", "u"},
	}
	for _, p := range pairs {
		state, err := Encode(p[0], p[1])
		require.NoError(t, err)

		u, o, err := Decode(state)
		require.NoError(t, err)
		assert.Equal(t, p[0], u)
		assert.Equal(t, p[1], o)
	}
}

func TestEncode_Format(t *testing.T) {
	state, err := Encode("U1", "O1")
	require.NoError(t, err)
	assert.Equal(t, "U1:O1", state)
}

func TestDecode_Malformed(t *testing.T) {
	for _, state := range []string{"", "no-delimiter-here", ":missingUser", "missingOrg:", ":"} {
		_, _, err := Decode(state)
		assert.ErrorIs(t, err, ErrMalformed, "state %q", state)
	}
}

func TestDecode_SplitsOnFirstDelimiter(t *testing.T) {
	u, o, err := Decode("u1:o1:extra")
	require.NoError(t, err)
	assert.Equal(t, "u1", u)
	assert.Equal(t, "o1:extra", o)
}

func TestEncode_RejectsAmbiguousIdentifiers(t *testing.T) {
	cases := [][2]string{{"", "o"}, {"u", ""}, {"a:b", "o"}, {"u", "o:1"}}
	for _, c := range cases {
		_, err := Encode(c[0], c[1])
		if !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("Encode(%q, %q) err = %v, want ErrInvalidIdentifier", c[0], c[1], err)
		}
	}
}
