package config

type MQTTConfig struct {
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	QoS      int    `toml:"qos"`
	// Deliver messages to handlers one at a time, in arrival order
	OrderMatters          bool `toml:"order_matters"`
	ConnectTimeoutSeconds int  `toml:"connect_timeout_seconds"`
	PublishTimeoutSeconds int  `toml:"publish_timeout_seconds"`
}

type DeviceConfig struct {
	DeviceID   string  `toml:"device_id"`
	MaxPowerKW float64 `toml:"max_power_kw"`
	Model      string  `toml:"model"`
}

// PlanWindow is a daily time window with a fixed power setpoint.
// Times are HH:MM:SS, End is exclusive.
type PlanWindow struct {
	Start   string  `toml:"start"`
	End     string  `toml:"end"`
	PowerKW float64 `toml:"power_kw"`
}

type IssuerConfig struct {
	ListenAddress      string         `toml:"listen_address"`
	ListenPort         int            `toml:"listen_port"`
	ProtocolVersion    string         `toml:"protocol_version"`
	IncludeMode        bool           `toml:"include_mode"`
	DefaultMaxPowerKW  float64        `toml:"default_max_power_kw"`
	PublishCron        string         `toml:"publish_cron"`
	RepublishCron      string         `toml:"republish_cron"`
	AckTimeoutSeconds  int            `toml:"ack_timeout_seconds"`
	MaxPublishAttempts int            `toml:"max_publish_attempts"`
	PlanDaysAhead      int            `toml:"plan_days_ahead"`
	LogFile            string         `toml:"log_file"`
	MQTT               MQTTConfig     `toml:"mqtt"`
	Devices            []DeviceConfig `toml:"devices"`
	Plan               []PlanWindow   `toml:"plan"`
}

type ModbusConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	SlaveID        int    `toml:"slave_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
	// Skip the ICMP reachability check before connecting
	SkipPing bool `toml:"skip_ping"`
}

type SerialConfig struct {
	Device         string `toml:"device"`
	Baudrate       uint   `toml:"baudrate"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type DeviceAgentConfig struct {
	DeviceID          string   `toml:"device_id"`
	SupportedVersions []string `toml:"supported_versions"`
	DefaultMaxPowerKW float64  `toml:"default_max_power_kw"`
	SendReceivedAck   bool     `toml:"send_received_ack"`
	// One of "mock", "modbus" or "serial"
	Controller string       `toml:"controller"`
	LogFile    string       `toml:"log_file"`
	MQTT       MQTTConfig   `toml:"mqtt"`
	Modbus     ModbusConfig `toml:"modbus"`
	Serial     SerialConfig `toml:"serial"`
}

type AckMonitorConfig struct {
	IssuerAPIHost string `toml:"issuer_api_host"`
	TLSEnabled    bool   `toml:"tls_enabled"`
	// Summary refresh interval, 0 disables the periodic table
	SummaryIntervalSeconds int `toml:"summary_interval_seconds"`
}
