package config

const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./listenwise.db"

	// MasterKeyEnv names the variable holding the vault master secret.
	MasterKeyEnv = "AUDIPY_MASTER_KEY"
)
