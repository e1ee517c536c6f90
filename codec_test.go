package tofcan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/tofcan/canbus"
	"github.com/notnil/tofcan/processing"
)

func TestConfigRoundTrip(t *testing.T) {
	cases := []Config{
		DefaultConfig(),
		{
			Resolution:       16,
			RangingFrequency: 60,
			Sharpener:        99,
			Mode:             processing.PointMode(3, 2),
			Threshold:        4000,
			ThresholdDelay:   255,
			Timing:           Continuous,
			Condition:        ThresholdEvent,
		},
		{
			Resolution:       64,
			RangingFrequency: 1,
			Mode:             processing.RowMode(7, processing.SelectAll),
			Condition:        AboveThreshold,
		},
	}
	for _, want := range cases {
		for _, sensor := range []int{0, 1, 31} {
			f, err := EncodeConfig(sensor, want)
			require.NoError(t, err)
			assert.Equal(t, ConfigBaseID|uint32(sensor), f.ID)
			assert.False(t, f.RTR)
			assert.Equal(t, uint8(ConfigSize), f.Len)

			var got ConfigFrame
			require.NoError(t, got.UnmarshalCANFrame(f))
			assert.Equal(t, sensor, got.Sensor)
			if diff := cmp.Diff(want, got.Config); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		}
	}
}

func TestConfigLayout(t *testing.T) {
	c := Config{
		Resolution:       64,
		RangingFrequency: 15,
		Sharpener:        5,
		Mode:             processing.ColumnMode(2, processing.SelectAverage),
		Threshold:        0x0321,
		ThresholdDelay:   4,
		Timing:           Continuous,
		Condition:        AboveThreshold,
	}
	b, err := c.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{64, 15, 5, 0x62, 0x21, 0x03, 4, 0x05}, b)

	// unused bits of byte 7 are ignored
	b[7] |= 0xF8
	got, err := DecodeConfig(b)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestConfigEncodeErrors(t *testing.T) {
	_, err := EncodeConfig(32, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidSensor)
	_, err = EncodeConfig(-1, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidSensor)

	c := DefaultConfig()
	c.Timing = 2
	_, err = EncodeConfig(1, c)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c = DefaultConfig()
	c.Condition = 4
	_, err = EncodeConfig(1, c)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.Resolution = 32 },
		func(c *Config) { c.RangingFrequency = 0 },
		func(c *Config) { c.RangingFrequency = 61 },
		func(c *Config) { c.Sharpener = 100 },
		func(c *Config) { c.Threshold = 4001 },
		func(c *Config) {
			c.Resolution = 16
			c.Mode = processing.ColumnMode(4, processing.SelectMin)
		},
	}
	for i, mutate := range bad {
		c := DefaultConfig()
		mutate(&c)
		assert.ErrorIs(t, c.Validate(), ErrInvalidConfig, "case %d", i)
	}
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, "resolution 8x8")
	assert.Contains(t, s, "min of matrix")
	assert.Contains(t, s, "transmit on-demand when always")
}

func TestDecodeMalformed(t *testing.T) {
	_, err := DecodeConfig(make([]byte, 7))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = DecodeSample(make([]byte, 5))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = DecodeDataPacket(nil)
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = DecodeDataPacket([]byte{0, 0x80 | 4<<2, 0, 0, 0, 0, 0, 0}) // last, no samples
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSampleRequest(t *testing.T) {
	f, err := EncodeSampleRequest(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x6E5), f.ID)
	assert.True(t, f.RTR)
	assert.Zero(t, f.Len)

	var r RequestFrame
	require.NoError(t, r.UnmarshalCANFrame(f))
	assert.Equal(t, 5, r.Sensor)

	var s SampleFrame
	assert.ErrorIs(t, s.UnmarshalCANFrame(f), ErrMalformed)
}

func TestSampleCodec(t *testing.T) {
	f, err := EncodeSample(3, Sample{Distance: -1, BelowThreshold: true})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x6E3), f.ID)
	assert.Equal(t, []byte{0xFF, 0xFF, 1, 0}, f.Payload())

	got, err := DecodeSample([]byte{0x2C, 0x01, 7, 0})
	require.NoError(t, err)
	assert.Equal(t, Sample{Distance: 300, BelowThreshold: true}, got)
}

func TestDataPacketCodec(t *testing.T) {
	p := DataPacket{Seq: 2, Len: 1, BatchID: 3, Last: true, Data: [3]int16{13, 0, 0}}
	f, err := EncodeDataPacket(5, p)
	require.NoError(t, err)
	assert.Equal(t, canbus.MustFrame(0x705, []byte{2, 0x8D, 13, 0, 0, 0, 0, 0}), f)

	var got DataPacketFrame
	require.NoError(t, got.UnmarshalCANFrame(f))
	assert.Equal(t, DataPacketFrame{Sensor: 5, Packet: p}, got)
	assert.Equal(t, []int16{13}, got.Packet.Samples())

	_, err = EncodeDataPacket(1, DataPacket{Len: 4})
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = EncodeDataPacket(1, DataPacket{Len: 0})
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = EncodeDataPacket(1, DataPacket{Len: 1, BatchID: 32})
	assert.ErrorIs(t, err, ErrMalformed)

	var cfg ConfigFrame
	assert.ErrorIs(t, cfg.UnmarshalCANFrame(f), ErrMalformed)
}

func TestPacketize(t *testing.T) {
	samples := []int16{7, 8, 9, 10, 11, 12, 13}
	packets, err := Packetize(35, samples)
	require.NoError(t, err)
	want := []DataPacket{
		{Seq: 0, Len: 3, BatchID: 3, Data: [3]int16{7, 8, 9}},
		{Seq: 1, Len: 3, BatchID: 3, Data: [3]int16{10, 11, 12}},
		{Seq: 2, Len: 1, BatchID: 3, Last: true, Data: [3]int16{13}},
	}
	assert.Equal(t, want, packets)

	full := make([]int16, BatchCapacity)
	packets, err = Packetize(0, full)
	require.NoError(t, err)
	require.Len(t, packets, 22)
	assert.Equal(t, uint8(1), packets[21].Len)
	assert.True(t, packets[21].Last)

	_, err = Packetize(0, make([]int16, BatchCapacity+1))
	assert.ErrorIs(t, err, ErrBatchTooLong)

	packets, err = Packetize(0, nil)
	require.NoError(t, err)
	assert.Empty(t, packets)
}

func TestIDs(t *testing.T) {
	sensor, base := SplitID(0x6E5)
	assert.Equal(t, 5, sensor)
	assert.Equal(t, SampleBaseID, base)

	typ, sensor := Classify(0x71F)
	assert.Equal(t, TypeDataPacket, typ)
	assert.Equal(t, 31, sensor)

	typ, _ = Classify(0x720)
	assert.Equal(t, TypeUnknown, typ)

	assert.True(t, Addressed(0, 7))
	assert.True(t, Addressed(7, 7))
	assert.False(t, Addressed(6, 7))
}
