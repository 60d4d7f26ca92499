package configstore

import (
	"encoding/binary"
	"math"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

// Image layout, little-endian:
//
//	[marker:1][useGas:1][minOperatingTemp:f32][boostEnabled:1][zoneCount:1]
//	MaxZones x [id:i32][pin:i8][forced:1][localTarget:f32]
const (
	Marker   byte = 0xAC
	MaxZones      = 6

	headerSize = 1 + 1 + 4 + 1 + 1
	zoneSize   = 4 + 1 + 1 + 4
	ImageSize  = headerSize + MaxZones*zoneSize
)

// Encode packs settings and the first MaxZones zones into a fixed-size image.
func Encode(s model.Settings, zones []model.ZoneRecord) []byte {
	if len(zones) > MaxZones {
		zones = zones[:MaxZones]
	}

	b := make([]byte, ImageSize)
	b[0] = Marker
	b[1] = boolByte(s.UseGas)
	binary.LittleEndian.PutUint32(b[2:], math.Float32bits(float32(s.MinOperatingTemp)))
	b[6] = boolByte(s.BoostEnabled)
	b[7] = byte(len(zones))

	off := headerSize
	for _, z := range zones {
		binary.LittleEndian.PutUint32(b[off:], uint32(int32(z.ID)))
		b[off+4] = byte(int8(storedPin(z.Pin)))
		b[off+5] = boolByte(z.Forced)
		binary.LittleEndian.PutUint32(b[off+6:], math.Float32bits(float32(z.TargetLocal)))
		off += zoneSize
	}
	return b
}

// Decode unpacks an image. ok is false when the marker is missing or the
// image is truncated; the caller should fall back to defaults.
func Decode(b []byte) (s model.Settings, zones []model.ZoneRecord, ok bool) {
	if len(b) < ImageSize || b[0] != Marker {
		return model.Settings{}, nil, false
	}

	s.UseGas = b[1] != 0
	s.MinOperatingTemp = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[2:])))
	s.BoostEnabled = b[6] != 0

	count := int(b[7])
	if count > MaxZones {
		count = MaxZones
	}

	off := headerSize
	for i := 0; i < count; i++ {
		z := model.NewZoneRecord(int(int32(binary.LittleEndian.Uint32(b[off:]))))
		z.Pin = storedPin(int(int8(b[off+4])))
		z.Forced = b[off+5] != 0
		z.TargetLocal = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off+6:])))
		zones = append(zones, z)
		off += zoneSize
	}
	return s, zones, true
}

// storedPin maps anything that is not a relay index to the unassigned
// sentinel, so a pin never wraps into range through the 8-bit field.
func storedPin(pin int) int {
	if !model.ValidPin(pin) {
		return model.PinUnassigned
	}
	return pin
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
