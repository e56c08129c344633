package config

// Protocol holds the settings shared by every vault.
type Protocol struct {
	FeeRateBps uint32 `toml:"FeeRateBps"`
	Treasury   string `toml:"Treasury"`
	Pauser     string `toml:"Pauser"`
}

// Storage selects the KV backend that holds engine state.
type Storage struct {
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// Archive configures the SQL event archive. An empty Driver disables it.
type Archive struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Keeper drives periodic fee settlement and NAV snapshots.
type Keeper struct {
	Enabled  bool   `toml:"Enabled"`
	Schedule string `toml:"Schedule"`
	NAVPath  string `toml:"NAVPath"`
}

// Telemetry configures OTLP export of traces and metrics. Both exporters are
// off unless enabled.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Log controls the structured logger.
type Log struct {
	Env        string `toml:"Env"`
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Vault describes one portfolio to create at startup. MaxSize is expressed in
// whole asset units and may carry a fractional part up to AssetDecimals.
type Vault struct {
	Name               string   `toml:"Name"`
	Symbol             string   `toml:"Symbol"`
	Asset              string   `toml:"Asset"`
	AssetDecimals      uint8    `toml:"AssetDecimals"`
	ShareDecimals      uint8    `toml:"ShareDecimals"`
	MaxSize            string   `toml:"MaxSize"`
	Duration           string   `toml:"Duration"`
	ManagerFeeBps      uint32   `toml:"ManagerFeeBps"`
	EntryFeeBps        uint32   `toml:"EntryFeeBps"`
	Beneficiary        string   `toml:"Beneficiary"`
	WithdrawPolicy     string   `toml:"WithdrawPolicy"`
	Transfers          string   `toml:"Transfers"`
	AllowedInstruments []string `toml:"AllowedInstruments"`
}

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"

	ArchiveSQLite   = "sqlite"
	ArchivePostgres = "postgres"

	WithdrawDefault = "default"
	WithdrawClosed  = "closed"

	TransfersAllow = "allow"
	TransfersBlock = "block"
)
