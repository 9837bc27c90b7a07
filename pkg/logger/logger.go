// Package logger fournit le logger structuré du binaire, construit une
// fois au démarrage et injecté partout.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config du logger. Env "development" donne une console lisible, tout
// autre environnement du JSON ligne à ligne.
type Config struct {
	Env   string
	Level string // trace, debug, info, warn, error
}

// Logger enveloppe zerolog pour l'injection par constructeur.
type Logger struct {
	zl zerolog.Logger
}

// New construit le logger et redirige aussi le logger global de zerolog,
// pour les librairies qui passent par lui.
func New(cfg Config) *Logger {
	var w io.Writer
	switch cfg.Env {
	case "development":
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	default:
		w = os.Stdout
	}

	zl := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	log.Logger = zl

	return &Logger{zl: zl}
}

// parseLevel retombe sur info pour tout niveau inconnu.
func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// With ouvre un sous-logger à champs fixes.
func (l *Logger) With() zerolog.Context {
	return l.zl.With()
}
