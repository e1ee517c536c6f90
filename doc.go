// Package tofcan implements the ToF-over-CAN protocol: a small set of CAN
// messages that lets a host configure, poll and stream readings from up to
// 32 time-of-flight distance sensors sharing one bus.
//
// The package covers:
//   - Identifier layout ("base | sensor id", sensor 0 is broadcast)
//   - Bit-exact codecs for config, single-sample and data-packet messages
//   - A Receiver that routes frames by identifier range
//   - A per-sensor Reassembler that rebuilds multi-packet batches while
//     tolerating loss, reordering and duplicates
//   - A bounded BatchQueue for handing batches to consumer goroutines
//   - Packetize, the sensor-side inverse of reassembly
//
// Node is the sensor side of the protocol. Transport lives in the canbus
// subpackage, the polar ring diagram in ring and sensor-side processing in
// processing.
package tofcan
