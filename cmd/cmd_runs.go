// cmd_runs.go - runs Commands
// Hauptfunktionen: RunsHandler, ShowRunHandler, newRunsCmd
package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/blackbox/convvae/envconfig"
	"github.com/blackbox/convvae/store"
)

const timeLayout = "2006-01-02 15:04"

func openHistory(cmd *cobra.Command) *store.Store {
	workdir, _ := cmd.Flags().GetString("working_directory")
	if workdir == "" {
		workdir = envconfig.WorkingDirectory()
	}
	return store.New(workdir)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	if header != nil {
		table.SetHeader(header)
	}
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RunsHandler - Listet alle aufgezeichneten Trainingslaeufe auf
func RunsHandler(cmd *cobra.Command, args []string) error {
	history := openHistory(cmd)
	defer history.Close()

	runs, err := history.Runs()
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)

	var data [][]string
	for _, r := range runs {
		loss := "-"
		if r.Epochs > 0 {
			loss = p.Sprintf("%.2f", r.LastLoss)
		}
		data = append(data, []string{
			shortID(r.ID),
			r.Dataset,
			strconv.Itoa(r.HiddenSize),
			fmt.Sprintf("%d/%d", r.Epochs, r.MaxEpoch),
			loss,
			string(r.Status),
			r.CreatedAt.Local().Format(timeLayout),
		})
	}

	table := newTable(cmd.OutOrStdout(), []string{"ID", "DATASET", "HIDDEN", "EPOCHS", "LOSS", "STATUS", "CREATED"})
	table.AppendBulk(data)
	table.Render()

	return nil
}

// ShowRunHandler - Zeigt Parameter und Epochen eines Laufs
func ShowRunHandler(cmd *cobra.Command, args []string) error {
	history := openHistory(cmd)
	defer history.Close()

	run, err := history.Run(args[0])
	if err != nil {
		return err
	}

	epochs, err := history.Epochs(run.ID)
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	w := cmd.OutOrStdout()

	info := newTable(w, nil)
	info.AppendBulk([][]string{
		{"id", run.ID},
		{"status", string(run.Status)},
		{"dataset", run.Dataset},
		{"hidden size", strconv.Itoa(run.HiddenSize)},
		{"batch size", strconv.Itoa(run.BatchSize)},
		{"updates per epoch", p.Sprintf("%d", run.UpdatesPerEpoch)},
		{"learning rate", strconv.FormatFloat(run.LearningRate, 'g', -1, 64)},
		{"seed", strconv.FormatInt(run.Seed, 10)},
		{"dtype", run.DType},
		{"checkpoint", run.Checkpoint},
		{"created", run.CreatedAt.Local().Format(timeLayout)},
	})
	if run.FinishedAt != nil {
		info.Append([]string{"finished", run.FinishedAt.Local().Format(timeLayout)})
	}
	info.Render()

	if len(epochs) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	var data [][]string
	for _, e := range epochs {
		data = append(data, []string{
			strconv.Itoa(e.Epoch),
			p.Sprintf("%.4f", e.Loss),
			p.Sprintf("%.4f", e.Stddev),
			e.Duration.Round(time.Millisecond).String(),
		})
	}

	table := newTable(w, []string{"EPOCH", "LOSS", "STDDEV", "DURATION"})
	table.AppendBulk(data)
	table.Render()

	return nil
}

// newRunsCmd - Erstellt den runs Command mit show Subcommand
func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs",
		Args:  cobra.NoArgs,
		RunE:  RunsHandler,
	}
	cmd.PersistentFlags().String("working_directory", "", "Working directory (default $VAE_WORKDIR or current directory)")

	showCmd := &cobra.Command{
		Use:   "show RUN",
		Short: "Show the epochs of a training run",
		Args:  cobra.ExactArgs(1),
		RunE:  ShowRunHandler,
	}
	cmd.AddCommand(showCmd)

	return cmd
}
