package config

// Default returns the built-in configuration. Worker roles map to the
// same agent CLI by default; projects override per role.
func Default() *Config {
	return &Config{
		Ceilings: CeilingConfig{
			AuditPasses:      4,
			TestPasses:       5,
			FinalAuditPasses: 3,
		},
		ContextWindow: 16,
		TestCommand:   "",
		DatabasePath:  ".foreman/foreman.db",
		Workers: map[string]WorkerConfig{
			"implementor": {Command: "claude"},
			"auditor":     {Command: "claude"},
			"test_writer": {Command: "claude"},
			"final_audit": {Command: "claude"},
		},
	}
}
