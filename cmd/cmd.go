// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blackbox/convvae/envconfig"
	"github.com/blackbox/convvae/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "convvae",
		Short:         "Convolutional variational autoencoder",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	// Commands erstellen
	trainCmd := newTrainCmd()
	sampleCmd := newSampleCmd()
	runsCmd := newRunsCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{trainCmd, sampleCmd, runsCmd} {
		switch cmd {
		case trainCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["VAE_DEBUG"],
				envVars["VAE_WORKDIR"],
				envVars["VAE_NUM_THREADS"],
				envVars["VAE_NOHISTORY"],
			})
		case sampleCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["VAE_DEBUG"],
				envVars["VAE_WORKDIR"],
				envVars["VAE_NUM_THREADS"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["VAE_WORKDIR"]})
		}
	}

	rootCmd.AddCommand(
		trainCmd,
		sampleCmd,
		runsCmd,
	)

	return rootCmd
}
