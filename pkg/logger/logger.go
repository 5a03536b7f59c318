package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// Entry is a structured log record handed to an optional external publisher.
type Entry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Fields    map[string]interface{}
}

// Publisher ships log entries to an external system (best effort).
type Publisher interface {
	Publish(entry Entry)
}

// Logger is a leveled key/value logger writing to stdout and, when a log
// directory is configured, to a dated file (collector_YYYYMMDD.log).
type Logger struct {
	logger *log.Logger
	level  Level

	mu        sync.Mutex
	dir       string
	file      *os.File
	fileDate  string
	publisher Publisher
}

func New(level string) *Logger {
	return &Logger{
		logger: log.New(os.Stdout, "", 0),
		level:  parseLevel(level),
	}
}

// NewWithFile returns a logger that also appends to a dated file under dir.
// File errors degrade to stdout-only logging.
func NewWithFile(level, dir string) *Logger {
	l := New(level)
	l.dir = dir
	return l
}

func parseLevel(level string) Level {
	switch level {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// SetLogPublisher attaches an external publisher for shipped log entries.
func (l *Logger) SetLogPublisher(p Publisher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.publisher = p
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log("DEBUG", msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...interface{}) {
	if l.level <= INFO {
		l.log("INFO", msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.level <= WARN {
		l.log("WARN", msg, args...)
	}
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	if l.level <= ERROR {
		if err != nil {
			args = append(args, "error", err.Error())
		}
		l.log("ERROR", msg, args...)
	}
}

func (l *Logger) log(level, msg string, args ...interface{}) {
	now := time.Now()
	message := fmt.Sprintf("[%s] [%s] %s", now.Format("2006-01-02 15:04:05"), level, msg)

	fields := make(map[string]interface{}, len(args)/2)
	if len(args) > 0 {
		message += " |"
		for i := 0; i < len(args); i += 2 {
			if i+1 < len(args) {
				message += fmt.Sprintf(" %v=%v", args[i], args[i+1])
				fields[fmt.Sprintf("%v", args[i])] = args[i+1]
			}
		}
	}

	l.logger.Println(message)

	l.mu.Lock()
	if w := l.fileWriterLocked(now); w != nil {
		fmt.Fprintln(w, message)
	}
	publisher := l.publisher
	l.mu.Unlock()

	if publisher != nil {
		publisher.Publish(Entry{
			Timestamp: now,
			Level:     level,
			Message:   msg,
			Fields:    fields,
		})
	}
}

// fileWriterLocked rotates the dated log file across day boundaries.
// Caller must hold l.mu.
func (l *Logger) fileWriterLocked(now time.Time) io.Writer {
	if l.dir == "" {
		return nil
	}

	date := now.Format("20060102")
	if l.file != nil && l.fileDate == date {
		return l.file
	}

	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		l.dir = ""
		return nil
	}

	path := filepath.Join(l.dir, "collector_"+date+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.dir = ""
		return nil
	}

	l.file = f
	l.fileDate = date
	return l.file
}

// Close releases the dated log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
