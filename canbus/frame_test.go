package canbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Validate_Marshal_Unmarshal_String(t *testing.T) {
	cases := []struct {
		name    string
		frame   Frame
		wantStr string
	}{
		{
			name:    "standard frame with data",
			frame:   MustFrame(0x123, []byte{0xDE, 0xAD}),
			wantStr: "123 [2] DE AD",
		},
		{
			name:    "extended RTR, zero length",
			frame:   Frame{ID: 0x1ABCDEFF, Extended: true, RTR: true},
			wantStr: "1ABCDEFF [0] RTR",
		},
		{
			name:    "tof sample request",
			frame:   RemoteFrame(0x6E5),
			wantStr: "6E5 [0] RTR",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.frame.Validate())
			b, err := tc.frame.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, b, 16)

			var g Frame
			require.NoError(t, g.UnmarshalBinary(b))
			assert.Equal(t, tc.frame, g)
			assert.Equal(t, tc.wantStr, g.String())
		})
	}
}

func TestFrame_Invalid(t *testing.T) {
	assert.ErrorIs(t, Frame{ID: 0x800}.Validate(), ErrInvalidID)
	assert.ErrorIs(t, Frame{ID: 0x20000000, Extended: true}.Validate(), ErrInvalidID)
	assert.ErrorIs(t, Frame{ID: 0x1, Len: 9}.Validate(), ErrInvalidLen)

	_, err := NewFrame(0x123, make([]byte, 9))
	assert.ErrorIs(t, err, ErrInvalidLen)
	assert.Panics(t, func() { MustFrame(0x123, make([]byte, 9)) })

	var f Frame
	assert.Error(t, f.UnmarshalBinary(make([]byte, 8)))
}

func TestFrame_RawID(t *testing.T) {
	f := Frame{ID: 0x6E5, RTR: true}
	raw := f.RawID()
	assert.Equal(t, uint32(0x400006E5), raw)

	id, ext, rtr := FromRawID(raw)
	assert.Equal(t, uint32(0x6E5), id)
	assert.False(t, ext)
	assert.True(t, rtr)

	id, ext, rtr = FromRawID(0x80000000 | 0x1ABCDEFF)
	assert.Equal(t, uint32(0x1ABCDEFF), id)
	assert.True(t, ext)
	assert.False(t, rtr)

	assert.True(t, isErrorFrame(0x20000004))
	assert.False(t, isErrorFrame(raw))
}

func TestNewFrame_PicksExtended(t *testing.T) {
	f, err := NewFrame(0x12345, []byte{1})
	require.NoError(t, err)
	assert.True(t, f.Extended)
	assert.Equal(t, []byte{1}, f.Payload())
}
