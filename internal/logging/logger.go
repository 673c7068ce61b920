package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации (регистр не важен)
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Options задают вывод логгеров
type Options struct {
	Dir          string   // Каталог файлов логов; пусто - без файла
	ConsoleLevel LogLevel // Минимальный уровень для консоли
	FileLevel    LogLevel // Минимальный уровень для файла
	Console      io.Writer
}

// DefaultOptions: консоль INFO+, без файла
func DefaultOptions() Options {
	return Options{ConsoleLevel: INFO, FileLevel: TRACE, Console: os.Stdout}
}

// Logger - логгер компонента с выводом в консоль и (опционально) файл
type Logger struct {
	component string

	mu              sync.Mutex
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

var (
	optionsMu      sync.RWMutex
	currentOptions = DefaultOptions()

	defaultLogger = newConsoleLogger("main", os.Stdout, INFO)
)

func newConsoleLogger(component string, w io.Writer, level LogLevel) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", log.LstdFlags),
		minConsoleLevel: level,
		minFileLevel:    ERROR,
	}
}

// NewWriterLogger создает логгер, пишущий в w (удобно в тестах)
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	return newConsoleLogger(component, w, level)
}

// NewLogger создает логгер компонента по текущим Options
func NewLogger(component string) (*Logger, error) {
	optionsMu.RLock()
	opts := currentOptions
	optionsMu.RUnlock()

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	l := newConsoleLogger(component, console, opts.ConsoleLevel)
	l.minFileLevel = opts.FileLevel

	if opts.Dir == "" {
		return l, nil
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", opts.Dir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(opts.Dir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}
	l.file = file
	l.fileLogger = log.New(file, "", log.LstdFlags)
	return l, nil
}

// Component возвращает имя компонента
func (l *Logger) Component() string {
	return l.component
}

// Close закрывает файл логов
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

// Enabled сообщает, попадет ли сообщение уровня level хоть в один вывод
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minConsoleLevel || (l.fileLogger != nil && level >= l.minFileLevel)
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	toConsole := l.consoleLogger != nil && level >= l.minConsoleLevel
	toFile := l.fileLogger != nil && level >= l.minFileLevel
	if !toConsole && !toFile {
		return
	}

	message := fmt.Sprintf("[%s] [%s] %s", level, l.component, fmt.Sprintf(format, args...))
	if toFile {
		l.fileLogger.Println(message)
	}
	if toConsole {
		l.consoleLogger.Println(message)
	}
}

func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// ProtocolError логирует ошибку разбора пакета с hex дампом нагрузки
func (l *Logger) ProtocolError(source string, err error, data []byte) {
	l.Error("Protocol error from %s: %v", source, err)
	if len(data) > 0 {
		l.Error("Raw data (%d bytes):\n%s", len(data), HexDump(data))
	}
}

// InitDefaultLogger применяет Options ко всем логгерам, создаваемым далее,
// и пересоздает логгер по умолчанию
func InitDefaultLogger(opts Options) error {
	optionsMu.Lock()
	currentOptions = opts
	optionsMu.Unlock()

	l, err := NewLogger("main")
	if err != nil {
		return err
	}
	old := defaultLogger
	defaultLogger = l
	_ = old.Close()
	return nil
}

// CloseDefaultLogger закрывает логгер по умолчанию и все логгеры компонентов
func CloseDefaultLogger() {
	_ = defaultLogger.Close()
	_ = GetLoggerManager().CloseAll()
}

// Default возвращает логгер по умолчанию
func Default() *Logger {
	return defaultLogger
}

func Trace(format string, args ...interface{}) { defaultLogger.Trace(format, args...) }
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }

// HexDump создает hex дамп данных
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}

	// Ограничиваем размер дампа до 256 байт
	size := len(data)
	if size > 256 {
		size = 256
	}

	dump := hex.Dump(data[:size])
	if size < len(data) {
		dump += fmt.Sprintf("... (%d more bytes)\n", len(data)-size)
	}
	return dump
}

// LogProtocolError логирует ошибки разбора протокола через логгер по умолчанию
func LogProtocolError(connID string, err error, data []byte) {
	defaultLogger.ProtocolError(connID, err, data)
}
