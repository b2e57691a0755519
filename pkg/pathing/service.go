package pathing

import "path/filepath"

func GetConfigDir() string {
	return "/etc/smartmeter_exporter"
}

func GetExporterConfigPath() string {
	return filepath.Join(GetConfigDir(), "exporter.toml")
}
