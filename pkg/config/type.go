package config

type ExporterConfig struct {
	// Announced in logs and the status document.
	Hostname string `toml:"hostname"`

	// P1 port framing. Most meters use 9600 baud, 7 data bits, even parity, 1 stop bit.
	SerialDevice string `toml:"serial_device"`
	Baudrate     uint   `toml:"baudrate"`
	DataBits     uint   `toml:"data_bits"`
	Parity       string `toml:"parity"`
	StopBits     uint   `toml:"stop_bits"`

	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
	Debug         bool   `toml:"debug"`

	// How often websocket clients receive the snapshot.
	BroadcastIntervalSeconds int `toml:"broadcast_interval_seconds"`

	// Optional. Leave the IP empty to disable /solar.
	SolarInverterIp         string `toml:"solar_inverter_ip"`
	SolarInverterModbusPort int    `toml:"solar_inverter_modbus_port"`
}
