package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	appcoding "github.com/turtacn/ClinTerm-Intelligence/internal/application/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/bootstrap"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

type extractOptions struct {
	file        string
	noteID      string
	predictions string
	persist     bool
	publish     bool
}

func newExtractCmd() *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract and code the clinical terms of a corpus file",
		Long: "Reads a plain-text corpus (one line per statement; blank lines and lines\n" +
			"starting with '#' are skipped), extracts the clinical terms of every line\n" +
			"and resolves each one to a SNOMED CT concept.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "corpus file (required)")
	f.StringVar(&opts.noteID, "note-id", "", "note ID recorded with the results (default: file name)")
	f.StringVar(&opts.predictions, "predictions", "", "write resolved codes as an evaluation CSV")
	f.BoolVar(&opts.persist, "persist", false, "store resolutions in PostgreSQL")
	f.BoolVar(&opts.publish, "publish", false, "publish resolutions to Kafka")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runExtract(cmd *cobra.Command, opts *extractOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := cliCtx.Config

	if opts.persist && !cfg.Database.Enabled {
		return errors.New(errors.ErrCodeInvalidConfig, "--persist requires database.enabled")
	}
	if opts.publish && !cfg.Kafka.Enabled {
		return errors.New(errors.ErrCodeInvalidConfig, "--publish requires kafka.enabled")
	}

	in, err := os.Open(opts.file)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeBadRequest, "failed to open corpus %q", opts.file)
	}
	defer in.Close()
	lines, err := appcoding.ReadCorpus(in)
	if err != nil {
		return err
	}

	noteID := opts.noteID
	if noteID == "" {
		base := filepath.Base(opts.file)
		noteID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	var sinks []appcoding.ResultSink
	if opts.predictions != "" {
		out, err := os.Create(opts.predictions)
		if err != nil {
			return errors.Wrapf(err, errors.ErrCodeBadRequest, "failed to create predictions file %q", opts.predictions)
		}
		defer out.Close()
		sinks = append(sinks, appcoding.NewCSVSink(out))
	}

	rt, err := cliCtx.Deps.OpenRuntime(ctx, cfg, cliCtx.Logger, bootstrap.Options{Postgres: opts.persist, Kafka: opts.publish})
	if err != nil {
		return err
	}
	defer rt.Close()

	cliCtx.Logger.Info("processing corpus",
		logging.String("file", opts.file),
		logging.String("note_id", noteID),
		logging.Int("lines", len(lines)))

	result, err := rt.CodingService(sinks...).ProcessNote(ctx, &appcoding.NoteInput{NoteID: noteID, Lines: lines})
	if err != nil {
		return err
	}
	return PrintResult(cmd, noteView{result})
}

// noteView renders a NoteResult.
type noteView struct {
	*appcoding.NoteResult
}

func (v noteView) String() string {
	var sb strings.Builder
	for _, lo := range v.Lines {
		fmt.Fprintf(&sb, "[%d] %s\n", lo.LineNo, lo.Result.Line)
		if lo.Result.Malformed {
			sb.WriteString("    (extraction reply was malformed)\n")
			continue
		}
		for _, res := range lo.Result.Ordered() {
			if !res.Resolved {
				fmt.Fprintf(&sb, "    %s -> no match\n", res.Term)
				continue
			}
			fmt.Fprintf(&sb, "    %s -> %s %q (rating %d, %s", res.Term, res.ConceptID(), res.Candidate.Display, res.Rating, res.Strategy)
			if res.RefinedTerm != "" {
				fmt.Fprintf(&sb, " via %q", res.RefinedTerm)
			}
			sb.WriteString(")\n")
		}
	}
	fmt.Fprintf(&sb, "note %s: %d lines, %d terms, %d resolved, %d malformed (run %s)\n",
		v.NoteID, len(v.Lines), len(v.Records), v.Resolved, v.Malformed, v.RunID)
	return sb.String()
}

func (v noteView) TableHeaders() []string {
	return []string{"Line", "Term", "Concept", "Display", "Rating", "Strategy", "Refined"}
}

func (v noteView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Records))
	for _, rec := range v.Records {
		rows = append(rows, []string{
			strconv.Itoa(rec.LineNo),
			truncateString(rec.Term, 40),
			rec.ConceptID,
			truncateString(rec.Display, 40),
			strconv.Itoa(int(rec.Rating)),
			rec.Strategy.String(),
			truncateString(rec.RefinedTerm, 30),
		})
	}
	return rows
}
