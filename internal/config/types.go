package config

// WorkerConfig describes the CLI used for one worker role.
type WorkerConfig struct {
	Command string   `json:"command"`        // CLI binary name (e.g. "claude", "codex")
	Args    []string `json:"args,omitempty"` // Default args prepended to every invocation
}

// CeilingConfig holds the retry ceilings for each retry family. The
// final-audit ceiling has no evidenced default and must always be an
// explicit configuration value.
type CeilingConfig struct {
	AuditPasses      int `json:"audit_passes"`       // Implementor <-> auditor chain
	TestPasses       int `json:"test_passes"`        // Test-run family
	FinalAuditPasses int `json:"final_audit_passes"` // Final gate
}

// Config is the top-level configuration.
type Config struct {
	Ceilings      CeilingConfig           `json:"ceilings"`
	ContextWindow int                     `json:"context_window"` // Rolling context entries retained
	TestCommand   string                  `json:"test_command"`   // Deterministic test command, run via the shell
	DatabasePath  string                  `json:"database_path"`  // Task store location
	Workers       map[string]WorkerConfig `json:"workers"`        // Role name -> worker CLI
}
