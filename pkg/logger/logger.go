package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level representa o nível de log
type Level int

const (
	// DEBUG nível para mensagens detalhadas de depuração
	DEBUG Level = iota
	// INFO nível para informações gerais
	INFO
	// WARN nível para avisos
	WARN
	// ERROR nível para erros
	ERROR
	// FATAL nível para erros fatais (encerra o programa)
	FATAL
)

// String retorna o nome do nível
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel converte um nome ("debug", "INFO", ...) em Level
func ParseLevel(name string) (Level, error) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(name)); err != nil {
		return INFO, fmt.Errorf("nível de log inválido %q: %w", name, err)
	}
	switch {
	case zl <= zapcore.DebugLevel:
		return DEBUG, nil
	case zl == zapcore.InfoLevel:
		return INFO, nil
	case zl == zapcore.WarnLevel:
		return WARN, nil
	case zl == zapcore.ErrorLevel:
		return ERROR, nil
	default:
		return FATAL, nil
	}
}

var (
	// Nível dinâmico compartilhado por todos os cores
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	// Formato de timestamp
	timeFormat = "2006-01-02 15:04:05.000"

	base  *zap.Logger
	sugar *zap.SugaredLogger

	fileOutput    *lumberjack.Logger
	fileOutputErr *lumberjack.Logger

	// Mutex para operações de configuração
	mu sync.Mutex

	// Inicialização já realizada
	initialized = false
)

func toZap(level Level) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return cfg
}

// consoleCores escreve INFO/DEBUG/WARN no stdout e ERROR/FATAL no stderr
func consoleCores(enc zapcore.Encoder) []zapcore.Core {
	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return atomicLevel.Enabled(l) && l < zapcore.ErrorLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return atomicLevel.Enabled(l) && l >= zapcore.ErrorLevel
	})
	return []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), low),
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), high),
	}
}

func build(cores []zapcore.Core) {
	// AddCallerSkip(2): função pública -> logMessage -> zap
	base = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(2))
	sugar = base.Sugar()
}

// Init inicializa o logger
func Init() {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return
	}

	build(consoleCores(zapcore.NewConsoleEncoder(encoderConfig())))
	initialized = true
}

// SetLevel define o nível mínimo de log
func SetLevel(level Level) {
	atomicLevel.SetLevel(toZap(level))
}

// GetLevel retorna o nível atual de log
func GetLevel() Level {
	switch atomicLevel.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	case zapcore.InfoLevel:
		return INFO
	default:
		return FATAL
	}
}

// IsDebugEnabled verifica se o nível de debug está habilitado
func IsDebugEnabled() bool {
	return GetLevel() <= DEBUG
}

// SetTimeFormat define o formato de timestamp (vale para Init/EnableFileLogging seguintes)
func SetTimeFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	timeFormat = format
}

// EnableFileLogging habilita o log para arquivo, com rotação por tamanho
func EnableFileLogging(logDir, prefix string) error {
	mu.Lock()
	defer mu.Unlock()

	// Criar diretório, se não existir
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("erro ao criar diretório de log: %w", err)
	}

	if prefix != "" {
		prefix = prefix + "_"
	}

	// Fechar arquivos anteriores, se existirem
	closeFiles()

	fileOutput = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, prefix+"app.log"),
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     14, // dias
		Compress:   true,
	}
	fileOutputErr = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, prefix+"error.log"),
		MaxSize:    20,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	enc := zapcore.NewConsoleEncoder(encoderConfig())
	errEnabled := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return atomicLevel.Enabled(l) && l >= zapcore.ErrorLevel
	})

	// Saídas mistas (terminal + arquivo)
	cores := consoleCores(enc)
	cores = append(cores,
		zapcore.NewCore(enc, zapcore.AddSync(fileOutput), atomicLevel),
		zapcore.NewCore(enc, zapcore.AddSync(fileOutputErr), errEnabled),
	)
	build(cores)
	initialized = true

	// Registrar início do log
	sugar.Info("Logging iniciado")
	return nil
}

func closeFiles() {
	if fileOutput != nil {
		fileOutput.Close()
		fileOutput = nil
	}
	if fileOutputErr != nil {
		fileOutputErr.Close()
		fileOutputErr = nil
	}
}

// Sync persiste os logs em disco e fecha os arquivos
func Sync() {
	mu.Lock()
	defer mu.Unlock()

	if base != nil {
		_ = base.Sync()
	}
	closeFiles()
}

// GetLogger retorna o logger zap para pacotes que precisam de campos estruturados
func GetLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		return zap.NewNop()
	}
	return base.WithOptions(zap.AddCallerSkip(-2))
}

// logMessage escreve uma mensagem de log com o nível especificado
func logMessage(level Level, format string, args ...interface{}) {
	if !atomicLevel.Enabled(toZap(level)) && level != FATAL {
		return
	}

	// Formatar mensagem
	var msg string
	if len(args) == 0 {
		msg = format
	} else {
		msg = fmt.Sprintf(format, args...)
	}

	mu.Lock()
	s := sugar
	mu.Unlock()

	// Logger não inicializado: fallback para stderr
	if s == nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", level, msg)
		if level == FATAL {
			panic(msg)
		}
		return
	}

	switch level {
	case DEBUG:
		s.Debug(msg)
	case INFO:
		s.Info(msg)
	case WARN:
		s.Warn(msg)
	case ERROR:
		s.Error(msg)
	case FATAL:
		// DPanic/Fatal do zap encerrariam sem passar pelos defers; mantemos panic
		s.Error(msg)
		_ = base.Sync()
		panic(msg)
	}
}

// Debug escreve mensagem de log com nível DEBUG
func Debug(msg string) {
	logMessage(DEBUG, "%s", msg)
}

// Debugf escreve mensagem de log formatada com nível DEBUG
func Debugf(format string, args ...interface{}) {
	logMessage(DEBUG, format, args...)
}

// Info escreve mensagem de log com nível INFO
func Info(msg string) {
	logMessage(INFO, "%s", msg)
}

// Infof escreve mensagem de log formatada com nível INFO
func Infof(format string, args ...interface{}) {
	logMessage(INFO, format, args...)
}

// Warn escreve mensagem de log com nível WARN
func Warn(msg string) {
	logMessage(WARN, "%s", msg)
}

// Warnf escreve mensagem de log formatada com nível WARN
func Warnf(format string, args ...interface{}) {
	logMessage(WARN, format, args...)
}

// Error escreve mensagem de log com nível ERROR
func Error(msg string, err error) {
	if err != nil {
		logMessage(ERROR, "%s: %v", msg, err)
	} else {
		logMessage(ERROR, "%s", msg)
	}
}

// Errorf escreve mensagem de log formatada com nível ERROR
func Errorf(format string, args ...interface{}) {
	logMessage(ERROR, format, args...)
}

// Fatal escreve mensagem de log com nível FATAL e encerra o programa
func Fatal(msg string, err error) {
	if err != nil {
		logMessage(FATAL, "%s: %v", msg, err)
	} else {
		logMessage(FATAL, "%s", msg)
	}
}

// Fatalf escreve mensagem de log formatada com nível FATAL e encerra o programa
func Fatalf(format string, args ...interface{}) {
	logMessage(FATAL, format, args...)
}
