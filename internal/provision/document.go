package provision

// Document is the declarative description of a site: devices, their
// tags, loggers grouping tags and alarm rules. The same structure is
// accepted as YAML (seed file) and JSON (provisioning API).
type Document struct {
	Version int          `json:"version" yaml:"version"`
	Devices []DeviceSpec `json:"devices" yaml:"devices"`
	Loggers []LoggerSpec `json:"loggers,omitempty" yaml:"loggers,omitempty"`
	Alarms  []AlarmSpec  `json:"alarms,omitempty" yaml:"alarms,omitempty"`
}

type DeviceSpec struct {
	Name       string    `json:"name" yaml:"name"`
	Protocol   string    `json:"protocol" yaml:"protocol"`
	Host       string    `json:"host,omitempty" yaml:"host,omitempty"`
	Port       int       `json:"port,omitempty" yaml:"port,omitempty"`
	SerialPort string    `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	BaudRate   int       `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits   int       `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits   int       `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity     string    `json:"parity,omitempty" yaml:"parity,omitempty"`
	UnitID     int       `json:"unit_id,omitempty" yaml:"unit_id,omitempty"`
	TimeoutMS  int       `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	ByteOrder  string    `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
	WordOrder  string    `json:"word_order,omitempty" yaml:"word_order,omitempty"`
	Active     *bool     `json:"active,omitempty" yaml:"active,omitempty"`
	Tags       []TagSpec `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type TagSpec struct {
	Name         string  `json:"name" yaml:"name"`
	Address      string  `json:"address" yaml:"address"`
	ZeroBased    bool    `json:"zero_based,omitempty" yaml:"zero_based,omitempty"`
	RegisterType string  `json:"register_type,omitempty" yaml:"register_type,omitempty"`
	Datatype     string  `json:"datatype" yaml:"datatype"`
	Scale        float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
	Offset       float64 `json:"offset,omitempty" yaml:"offset,omitempty"`
	Unit         string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Group        string  `json:"group,omitempty" yaml:"group,omitempty"`
}

// LoggerSpec references tags as "device/tag" name pairs.
type LoggerSpec struct {
	Name        string   `json:"name" yaml:"name"`
	Enabled     *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type AlarmSpec struct {
	Name         string  `json:"name" yaml:"name"`
	Tag          string  `json:"tag" yaml:"tag"`
	Operator     string  `json:"operator" yaml:"operator"`
	Threshold    float64 `json:"threshold" yaml:"threshold"`
	OnStableSec  int     `json:"on_stable_sec,omitempty" yaml:"on_stable_sec,omitempty"`
	OffStableSec int     `json:"off_stable_sec,omitempty" yaml:"off_stable_sec,omitempty"`
	Level        string  `json:"level,omitempty" yaml:"level,omitempty"`
	Enabled      *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}
