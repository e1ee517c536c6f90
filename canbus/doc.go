// Package canbus provides the CAN transport used by the tofcan protocol
// stack.
//
// It includes:
//   - A core Frame type with validation, text and binary helpers
//   - The Bus interface and an in-memory loopback bus for tests and simulations
//   - A Mux that fans frames out to filtered subscribers
//   - A slog-backed logging decorator
//   - Drivers: Linux SocketCAN (x/sys, brutella/can, einride/can) and
//     serial-line SLCAN adapters (go.bug.st/serial)
package canbus
