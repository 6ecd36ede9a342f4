package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	DebugLog   *log.Logger
	InfoLog    *log.Logger
	WarningLog *log.Logger
	ErrorLog   *log.Logger

	// Global config reference
	globalConfig *LogConfig

	// Session loggers map (sessionID -> loggers)
	sessionLoggers map[string]*SessionLoggers
	sessionMu      sync.Mutex

	globalWriter  io.Writer = io.Discard
	globalLogFile io.Closer
)

// LogConfig holds logging configuration
type LogConfig struct {
	LogsEnabled    bool
	LogsDir        string
	LogMaxSize     int
	LogMaxFiles    int
	LogMaxAge      int
	LogCompress    bool
	UseSessionLogs bool
	Debug          bool
}

// DefaultLogConfig returns the default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		LogsEnabled:    true,
		LogsDir:        "",
		LogMaxSize:     10, // 10MB
		LogMaxFiles:    5,  // 5 backups
		LogMaxAge:      30, // 30 days
		LogCompress:    true,
		UseSessionLogs: false,
		Debug:          false,
	}
}

const logBaseName = "repl-toolkit.log"

// Default log directory and filename
var logFileName = filepath.Join(os.TempDir(), logBaseName)

// GetConfigDir returns the path to the toolkit's configuration directory
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".repl-toolkit"), nil
}

// GetLogDir returns the directory where logs should be stored
func GetLogDir(cfg *LogConfig) (string, error) {
	if cfg != nil && !cfg.LogsEnabled {
		return os.TempDir(), nil
	}

	if cfg != nil && cfg.LogsDir != "" {
		return cfg.LogsDir, nil
	}

	// Otherwise use ~/.repl-toolkit/logs/
	configDir, err := GetConfigDir()
	if err != nil {
		return os.TempDir(), fmt.Errorf("failed to get config directory: %w", err)
	}

	logDir := filepath.Join(configDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return os.TempDir(), fmt.Errorf("failed to create log directory: %w", err)
	}

	return logDir, nil
}

// GetLogFilePath returns the full path to the log file
func GetLogFilePath(cfg *LogConfig) (string, error) {
	logDir, err := GetLogDir(cfg)
	if err != nil {
		return logFileName, err
	}

	return filepath.Join(logDir, logBaseName), nil
}

// GetSessionLogFilePath returns the full path to a session-specific log file
func GetSessionLogFilePath(cfg *LogConfig, sessionID string) (string, error) {
	logDir, err := GetLogDir(cfg)
	if err != nil {
		return "", err
	}

	// Sanitize sessionID to be safe as a filename
	safeSessionID := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, sessionID)

	return filepath.Join(logDir, fmt.Sprintf("session_%s.log", safeSessionID)), nil
}

// SessionLoggers holds the loggers for a specific session. Every line carries the
// session id so interleaved sessions in one process stay distinguishable.
type SessionLoggers struct {
	DebugLog   *log.Logger
	InfoLog    *log.Logger
	WarningLog *log.Logger
	ErrorLog   *log.Logger
	LogFile    io.Closer
}

// ForSession creates or retrieves loggers for a specific session. When session log
// files are enabled the output goes to both the session file and the global writer.
func ForSession(sessionID string) *SessionLoggers {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if loggers, exists := sessionLoggers[sessionID]; exists {
		return loggers
	}

	writer := globalWriter
	var closer io.Closer
	if globalConfig != nil && globalConfig.UseSessionLogs && globalConfig.LogsEnabled {
		path, err := GetSessionLogFilePath(globalConfig, sessionID)
		if err != nil {
			ErrorLog.Printf("failed to get session log file path for %s: %v", sessionID, err)
		} else {
			sessionWriter := createRotatingWriter(path, globalConfig)
			writer = io.MultiWriter(globalWriter, sessionWriter)
			if c, ok := sessionWriter.(io.Closer); ok {
				closer = c
			}
		}
	}

	flags := log.Ldate | log.Ltime | log.Lshortfile
	debugWriter := io.Discard
	if globalConfig != nil && globalConfig.Debug {
		debugWriter = writer
	}
	loggers := &SessionLoggers{
		DebugLog:   log.New(debugWriter, fmt.Sprintf("[%s] DEBUG: ", sessionID), flags),
		InfoLog:    log.New(writer, fmt.Sprintf("[%s] INFO: ", sessionID), flags),
		WarningLog: log.New(writer, fmt.Sprintf("[%s] WARNING: ", sessionID), flags),
		ErrorLog:   log.New(writer, fmt.Sprintf("[%s] ERROR: ", sessionID), flags),
		LogFile:    closer,
	}
	sessionLoggers[sessionID] = loggers

	return loggers
}

// Release drops the cached loggers for a session and closes its log file, if any.
func Release(sessionID string) {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if loggers, exists := sessionLoggers[sessionID]; exists {
		if loggers.LogFile != nil {
			_ = loggers.LogFile.Close()
		}
		delete(sessionLoggers, sessionID)
	}
}

func init() {
	sessionLoggers = make(map[string]*SessionLoggers)
	// Loggers are silent until the host application calls Initialize or SetOutput.
	// The toolkit shares the terminal with a line editor and must never write to it
	// on its own.
	SetOutput(io.Discard)
}

// SetOutput points every global logger at w. Passing io.Discard silences the toolkit.
func SetOutput(w io.Writer) {
	sessionMu.Lock()
	globalWriter = w
	sessionLoggers = make(map[string]*SessionLoggers)
	sessionMu.Unlock()

	flags := log.Ldate | log.Ltime | log.Lshortfile
	debugWriter := io.Discard
	if globalConfig != nil && globalConfig.Debug {
		debugWriter = w
	}
	DebugLog = log.New(debugWriter, "DEBUG: ", flags)
	InfoLog = log.New(w, "INFO: ", flags)
	WarningLog = log.New(w, "WARNING: ", flags)
	ErrorLog = log.New(w, "ERROR: ", flags)
}

// Initialize should be called once at the beginning of the program to set up logging.
// defer Close() after calling this function. Logs go to the configured log directory
// (default: ~/.repl-toolkit/logs/).
func Initialize(cfg *LogConfig) {
	if cfg == nil {
		cfg = DefaultLogConfig()
	}
	globalConfig = cfg

	if !cfg.LogsEnabled {
		SetOutput(io.Discard)
		return
	}

	logFilePath, err := GetLogFilePath(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Using default log file location due to error: %v\n", err)
		logFilePath = logFileName
	}

	writer := createRotatingWriter(logFilePath, cfg)
	SetOutput(writer)

	if closer, ok := writer.(io.Closer); ok {
		globalLogFile = closer
	}
	logFileName = logFilePath
}

// createRotatingWriter creates a writer that handles log rotation based on config
func createRotatingWriter(logFilePath string, cfg *LogConfig) io.Writer {
	if cfg == nil || cfg.LogMaxSize <= 0 {
		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			panic(fmt.Sprintf("could not create log directory: %s", err))
		}

		// No rotation, use standard file
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			panic(fmt.Sprintf("could not open log file: %s", err))
		}
		return f
	}

	return &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.LogMaxSize,  // megabytes
		MaxBackups: cfg.LogMaxFiles, // number of backups
		MaxAge:     cfg.LogMaxAge,   // days
		Compress:   cfg.LogCompress, // compress rotated files
		LocalTime:  true,
	}
}

// Path returns the file the global loggers currently write to.
func Path() string {
	return logFileName
}

// Close releases the global log file and every session log file.
func Close() {
	sessionMu.Lock()
	for id, loggers := range sessionLoggers {
		if loggers.LogFile != nil {
			_ = loggers.LogFile.Close()
		}
		delete(sessionLoggers, id)
	}
	sessionMu.Unlock()

	if globalLogFile != nil {
		_ = globalLogFile.Close()
		globalLogFile = nil
	}
	SetOutput(io.Discard)
}

// Every is used to log at most once every timeout duration.
type Every struct {
	timeout time.Duration
	timer   *time.Timer
}

func NewEvery(timeout time.Duration) *Every {
	return &Every{timeout: timeout}
}

// ShouldLog returns true if the timeout has passed since the last log.
func (e *Every) ShouldLog() bool {
	if e.timer == nil {
		e.timer = time.NewTimer(e.timeout)
		e.timer.Reset(e.timeout)
		return true
	}

	select {
	case <-e.timer.C:
		e.timer.Reset(e.timeout)
		return true
	default:
		return false
	}
}
