package entities

// StorageStats describes the host filesystem holding the managed
// directories. Consumed by the space gate.
type StorageStats struct {
	UsedPercent float64 `yaml:"used_percent" json:"used_percent"`
	TotalBytes  int64   `yaml:"total_bytes" json:"total_bytes"`
	FreeBytes   int64   `yaml:"free_bytes" json:"free_bytes"`
}
