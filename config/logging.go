package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// LogWriter receives application, gin and gorm output.
var LogWriter io.Writer = os.Stdout

// LogFilePath returns LOG_FILE, or logs/refund-review-api.log when unset.
func LogFilePath() string {
	return Env("LOG_FILE", filepath.Join("logs", "refund-review-api.log"))
}

// InitLogging points LogWriter and the standard logger at stdout plus the log file.
// When the file cannot be opened logging stays on stdout. The returned func closes
// the file.
func InitLogging() func() {
	path := LogFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("[logging] cannot create %s: %v", filepath.Dir(path), err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("[logging] %s unavailable, logging to stdout only: %v", path, err)
		setLogWriter(os.Stdout)
		return func() {}
	}

	setLogWriter(io.MultiWriter(os.Stdout, file))
	return func() {
		setLogWriter(os.Stdout)
		_ = file.Close()
	}
}

func setLogWriter(w io.Writer) {
	LogWriter = w
	log.SetOutput(w)
}
