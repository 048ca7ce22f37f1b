// config.go - Haupt-Konfigurationsfunktionen fuer convvae
//
// Dieses Modul enthaelt:
// - WorkingDirectory: Arbeitsverzeichnis (VAE_WORKDIR)
// - NumThreads: Goroutinen fuer den parallelen Bildexport (VAE_NUM_THREADS)
// - NoHistory: Laufhistorie deaktivieren (VAE_NOHISTORY)
// - LogLevel: Log-Level (VAE_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// WorkingDirectory gibt das Arbeitsverzeichnis zurueck
// Konfigurierbar via VAE_WORKDIR
// Default: aktuelles Verzeichnis
func WorkingDirectory() string {
	if s := Var("VAE_WORKDIR"); s != "" {
		return s
	}

	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// NumThreads gibt die maximale Anzahl paralleler Goroutinen fuer
// den Bildexport zurueck
// Konfigurierbar via VAE_NUM_THREADS
// Default: GOMAXPROCS
var NumThreads = Uint("VAE_NUM_THREADS", uint(runtime.GOMAXPROCS(0)))

// NoHistory deaktiviert die SQLite-Laufhistorie
var NoHistory = Bool("VAE_NOHISTORY")

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via VAE_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("VAE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
