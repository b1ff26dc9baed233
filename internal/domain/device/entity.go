package device

import (
	"fmt"
)

// Config describes one physical time-clock device. Supplied by configuration,
// read-only to the pipeline.
type Config struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Host     string `json:"host" validate:"required,hostname|ip"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority" validate:"min=0"`
}

// Address returns the host:port pair used to key resilience state per device.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Info is the device self-description returned by the info probe.
type Info struct {
	SerialNumber    string `json:"serial_number"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	UserCount       int    `json:"user_count"`
	RecordCount     int    `json:"record_count"`
}

// User is one enrolled person as reported by the device.
type User struct {
	DeviceUserID string `json:"device_user_id"`
	Name         string `json:"name"`
	CardNumber   string `json:"card_number"`
	Privilege    int    `json:"privilege"`
}

// RawLogEntry is one punch event exactly as the device reported it, prior to
// any validation. Devices and push imports report loosely typed fields --
// timestamps as epoch seconds, epoch milliseconds, or strings, numeric fields
// as numeric-looking strings -- so everything past the identifiers stays
// untyped until tier-1 schema validation coerces it. TransactionID is assigned
// by the device per punch.
type RawLogEntry struct {
	DeviceUserID  string      `json:"device_user_id"`
	TransactionID string      `json:"transaction_id"`
	Timestamp     interface{} `json:"timestamp"`
	EventState    interface{} `json:"event_state"`
	EventType     interface{} `json:"event_type"`
}
