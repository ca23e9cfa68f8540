package adiv5

import (
	"fmt"

	"github.com/cesanta/errors"
)

// Every debug component closes its 4KiB region with a four-register
// identification block. Each register carries one byte of the 32-bit
// Component ID in its low lane; the rest of each word is not architecturally
// meaningful and many buses return garbage there, which is why the ID is
// always read as four narrow lanes and reassembled.
const (
	// CIDR0Offset is where the ID block starts within the component
	// region; lanes follow at word strides.
	CIDR0Offset uint16 = 0xff0

	// CIDPreamble is the fixed value of a Component ID outside its class
	// nibble.
	CIDPreamble uint32 = 0xb105000d

	cidClassMask  uint32 = 0x0000f000
	cidClassShift        = 12

	// The Peripheral ID block sits just below the Component ID block,
	// split in two: PIDR4..7 first, then PIDR0..3.
	PIDR4Offset uint16 = 0xfd0
	PIDR0Offset uint16 = 0xfe0
)

// Component classes carried in the CIDR class nibble.
const (
	ClassROMTable   uint8 = 0x1
	ClassCoreSight  uint8 = 0x9
	ClassPeriphTest uint8 = 0xb
	ClassGenericIP  uint8 = 0xe
	ClassPrimeCell  uint8 = 0xf
)

var classNames = map[uint8]string{
	ClassROMTable:   "ROM table",
	ClassCoreSight:  "CoreSight component",
	ClassPeriphTest: "peripheral test block",
	ClassGenericIP:  "generic IP component",
	ClassPrimeCell:  "PrimeCell peripheral",
}

// ComponentID is an assembled 32-bit Component ID.
type ComponentID uint32

// AssembleCID builds a Component ID from the four lane reads, taking the
// low byte of lane i as ID bits [8i+7:8i].
func AssembleCID(lanes [4]uint32) ComponentID {
	var id uint32
	for i, lane := range lanes {
		id |= (lane & 0xff) << (8 * uint(i))
	}
	return ComponentID(id)
}

// Valid reports whether the ID carries the architectural preamble. The
// class nibble is excluded from the comparison; any class value passes.
func (id ComponentID) Valid() bool {
	return uint32(id)&^cidClassMask == CIDPreamble
}

// Class returns the component class nibble.
func (id ComponentID) Class() uint8 {
	return uint8((uint32(id) & cidClassMask) >> cidClassShift)
}

func (id ComponentID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("0x%08x (not a component)", uint32(id))
	}
	name := classNames[id.Class()]
	if name == "" {
		name = fmt.Sprintf("class 0x%x", id.Class())
	}
	return fmt.Sprintf("0x%08x (%s)", uint32(id), name)
}

// ComponentID reads and assembles the ID block of the component based at
// base through the memory window. This is the v5 discovery path, where
// components live in target memory behind a MEM-AP.
func (m *MemAP) ComponentID(base TargetAddr64) (ComponentID, error) {
	var lanes [4]uint32
	for i := range lanes {
		value, err := m.ReadWord(base + TargetAddr64(CIDR0Offset) + TargetAddr64(i*4))
		if err != nil {
			return 0, errors.Annotatef(err, "failed to read CIDR%d of component at 0x%x", i, uint64(base))
		}
		lanes[i] = value
	}
	return AssembleCID(lanes), nil
}

// PeripheralID is an assembled 64-bit Peripheral ID.
type PeripheralID uint64

// AssemblePID builds a Peripheral ID from the eight lane reads in PIDR0..7
// order, taking the low byte of lane i as ID bits [8i+7:8i].
func AssemblePID(lanes [8]uint32) PeripheralID {
	var id uint64
	for i, lane := range lanes {
		id |= uint64(lane&0xff) << (8 * uint(i))
	}
	return PeripheralID(id)
}

// JEDEC reports whether the designer field carries a JEP106 code. The
// alternative legacy encoding is not decoded here.
func (id PeripheralID) JEDEC() bool {
	return id>>19&1 == 1
}

// Designer returns the part designer: the JEP106 continuation count from
// PIDR4 plus the identity code spanning PIDR1 and PIDR2.
func (id PeripheralID) Designer() Designer {
	return Designer(uint16(id>>32&0xf)<<8 | uint16(id>>12&0x7f))
}

// Part returns the designer-assigned 12-bit part number.
func (id PeripheralID) Part() uint16 {
	return uint16(id & 0xfff)
}

func (id PeripheralID) Revision() uint8 {
	return uint8(id >> 20 & 0xf)
}

func (id PeripheralID) String() string {
	return fmt.Sprintf("part 0x%03x rev %d by %s", id.Part(), id.Revision(), id.Designer())
}

// PeripheralID reads and assembles the eight-lane Peripheral ID block of
// the component based at base through the memory window.
func (m *MemAP) PeripheralID(base TargetAddr64) (PeripheralID, error) {
	var lanes [8]uint32
	for i := range lanes {
		offset := PIDR0Offset + uint16(i*4)
		if i >= 4 {
			offset = PIDR4Offset + uint16(i-4)*4
		}
		value, err := m.ReadWord(base + TargetAddr64(offset))
		if err != nil {
			return 0, errors.Annotatef(err, "failed to read PIDR%d of component at 0x%x", i, uint64(base))
		}
		lanes[i] = value
	}
	return AssemblePID(lanes), nil
}

// Designer identifies a part designer in JEP106 form: continuation count in
// the high byte, 7-bit identity code in the low byte.
type Designer uint16

var jep106Names = map[Designer]string{
	0x00e: "Freescale",
	0x015: "NXP",
	0x017: "Texas Instruments",
	0x01f: "Atmel",
	0x020: "STMicroelectronics",
	0x244: "Nordic Semiconductor",
	0x423: "Renesas",
	0x43b: "ARM",
	0x913: "Raspberry Pi",
}

func (d Designer) String() string {
	if name, ok := jep106Names[d]; ok {
		return name
	}
	return fmt.Sprintf("0x%03x", uint16(d))
}
