// Package devicedb is a YAML-backed reference implementation of the
// updi.Target and updi.MemorySegment accessor interfaces. It ships a
// handful of illustrative parts (one per NVM variant) for tests and CLI
// --device resolution; a real deployment supplies its own provider,
// typically backed by pack-tool XML or Atmel ATDF files.
package devicedb

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v2"
)

//go:embed parts.yaml
var builtinParts []byte

// Segment describes one named memory region on a device.
type Segment struct {
	SegName      string `yaml:"name"`
	Addr         uint32 `yaml:"address"`
	SegSize      uint32 `yaml:"size"`
	SegPageSize  uint32 `yaml:"page_size"`
	SegWriteSize uint32 `yaml:"write_size"`
	SegReadSize  uint32 `yaml:"read_size"`
}

func (s Segment) Name() string      { return s.SegName }
func (s Segment) Address() uint32   { return s.Addr }
func (s Segment) Size() uint32      { return s.SegSize }
func (s Segment) PageSize() uint32  { return s.SegPageSize }
func (s Segment) WriteSize() uint32 { return s.SegWriteSize }
func (s Segment) ReadSize() uint32  { return s.SegReadSize }

// Device is one part table entry, implementing updi.Target.
type Device struct {
	DeviceName    string    `yaml:"name"`
	Sigrow        uint32    `yaml:"sigrow_address"`
	Syscfg        uint32    `yaml:"syscfg_address"`
	Nvmctrl       uint32    `yaml:"nvmctrl_address"`
	Fuses         uint32    `yaml:"fuses_address"`
	Userrow       uint32    `yaml:"userrow_address"`
	FlashStartVal uint32    `yaml:"flash_start"`
	FlashSizeVal  uint32    `yaml:"flash_size"`
	FlashPageVal  uint32    `yaml:"flash_pagesize"`
	ExpectedID    uint32    `yaml:"expected_device_id"`
	Segments      []Segment `yaml:"memory_segments,omitempty"`
}

func (d Device) SigrowAddress() uint32    { return d.Sigrow }
func (d Device) SyscfgAddress() uint32    { return d.Syscfg }
func (d Device) NvmctrlAddress() uint32   { return d.Nvmctrl }
func (d Device) FusesAddress() uint32     { return d.Fuses }
func (d Device) UserrowAddress() uint32   { return d.Userrow }
func (d Device) FlashStart() uint32       { return d.FlashStartVal }
func (d Device) FlashSize() uint32        { return d.FlashSizeVal }
func (d Device) FlashPageSize() uint32    { return d.FlashPageVal }
func (d Device) ExpectedDeviceID() uint32 { return d.ExpectedID }

// DB is a loaded device table.
type DB struct {
	Devices []Device `yaml:"devices"`
}

// Parse parses a device table from YAML bytes.
func Parse(raw []byte) (*DB, error) {
	db := &DB{}
	if err := yaml.Unmarshal(raw, db); err != nil {
		return nil, fmt.Errorf("devicedb: parse: %w", err)
	}
	return db, nil
}

// Builtin returns the parsed, embedded reference part table.
func Builtin() (*DB, error) {
	return Parse(builtinParts)
}

// Lookup finds a device by name (case-sensitive, matching the table's
// "name" field exactly).
func (db *DB) Lookup(name string) (*Device, error) {
	for i := range db.Devices {
		if db.Devices[i].DeviceName == name {
			return &db.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("devicedb: unknown device %q", name)
}

// Names returns every device name in the table, in table order.
func (db *DB) Names() []string {
	names := make([]string, len(db.Devices))
	for i, d := range db.Devices {
		names[i] = d.DeviceName
	}
	return names
}
