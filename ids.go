package tofcan

import "fmt"

// MaxSensors is the number of distinct sensor ids. Id 0 is the broadcast
// address.
const MaxSensors = 32

// Broadcast addresses every sensor node.
const Broadcast = 0

// Message base identifiers. A message for sensor n uses base | n.
const (
	ConfigBaseID     uint32 = 0x6C0 // 0x6C0..0x6DF host -> sensor
	SampleBaseID     uint32 = 0x6E0 // 0x6E0..0x6FF RTR request / sample response
	DataPacketBaseID uint32 = 0x700 // 0x700..0x71F batch fragments
)

// MessageType names the message class of an identifier.
type MessageType uint32

const (
	TypeUnknown    MessageType = 0
	TypeConfig     MessageType = MessageType(ConfigBaseID)
	TypeSample     MessageType = MessageType(SampleBaseID)
	TypeDataPacket MessageType = MessageType(DataPacketBaseID)
)

func (t MessageType) String() string {
	switch t {
	case TypeConfig:
		return "config"
	case TypeSample:
		return "sample"
	case TypeDataPacket:
		return "data-packet"
	default:
		return fmt.Sprintf("unknown(0x%X)", uint32(t))
	}
}

// SplitID splits a CAN identifier into its sensor id (id mod 32) and the
// remaining base.
func SplitID(id uint32) (sensor int, base uint32) {
	sensor = int(id % MaxSensors)
	return sensor, id - uint32(sensor)
}

// Classify returns the message type and sensor id of an identifier.
// Identifiers outside the three ToF ranges yield TypeUnknown.
func Classify(id uint32) (MessageType, int) {
	sensor, base := SplitID(id)
	switch base {
	case ConfigBaseID, SampleBaseID, DataPacketBaseID:
		return MessageType(base), sensor
	default:
		return TypeUnknown, sensor
	}
}

// MessageID composes the identifier of a message for sensor.
func MessageID(t MessageType, sensor int) (uint32, error) {
	if err := ValidateSensor(sensor); err != nil {
		return 0, err
	}
	return uint32(t) | uint32(sensor), nil
}

// ValidateSensor checks that sensor is in 0..31.
func ValidateSensor(sensor int) error {
	if sensor < 0 || sensor >= MaxSensors {
		return fmt.Errorf("%w: %d (valid 0..%d)", ErrInvalidSensor, sensor, MaxSensors-1)
	}
	return nil
}

// Addressed reports whether a message carrying msgSensor is meant for the
// node whose id is own: either it names own or it is a broadcast.
func Addressed(msgSensor, own int) bool {
	return msgSensor == Broadcast || msgSensor == own
}
