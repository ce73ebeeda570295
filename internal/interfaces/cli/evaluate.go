package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turtacn/ClinTerm-Intelligence/internal/application/evaluation"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

type evaluateOptions struct {
	truth     string
	predicted string
	remap     string
	archive   bool
}

func newEvaluateCmd() *cobra.Command {
	opts := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score predicted concept codes against ground truth",
		Long: "Both files are CSV with note_id and concept_id columns. Each note of the\n" +
			"ground truth is scored by IOU and precision over its distinct concepts and\n" +
			"the scores are macro-averaged.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.truth, "ground-truth", "g", "", "ground truth CSV (required)")
	f.StringVarP(&opts.predicted, "predictions", "p", "", "predicted CSV (required)")
	f.StringVar(&opts.remap, "remap", "", "source_id,target_id CSV applied to the ground truth")
	f.BoolVar(&opts.archive, "archive", false, "store the report in object storage")
	_ = cmd.MarkFlagRequired("ground-truth")
	_ = cmd.MarkFlagRequired("predictions")
	return cmd
}

func runEvaluate(cmd *cobra.Command, opts *evaluateOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	truth, err := loadTable(opts.truth)
	if err != nil {
		return err
	}
	predicted, err := loadTable(opts.predicted)
	if err != nil {
		return err
	}
	if opts.remap != "" {
		mapping, err := readFile(opts.remap, evaluation.LoadMapping)
		if err != nil {
			return err
		}
		truth = evaluation.Remap(truth, mapping)
	}

	report, err := evaluation.Evaluate(truth, predicted)
	if err != nil {
		return err
	}
	cliCtx.Logger.Info("evaluation finished",
		logging.Int("notes", len(report.Notes)),
		logging.Float64("macro_iou", report.MacroIOU),
		logging.Float64("macro_precision", report.MacroPrecision))

	if opts.archive {
		archive, err := cliCtx.Deps.OpenArchive(ctx, cliCtx.Config, cliCtx.Logger)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("report-%s.json", time.Now().UTC().Format("20060102T150405Z"))
		obj, err := archive.PutJSON(ctx, minio.KindEvaluations, uuid.NewString(), name, report)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "archived report to %s\n", obj.Key)
	}
	return PrintResult(cmd, reportView{report})
}

func loadTable(path string) (evaluation.CodeTable, error) {
	return readFile(path, evaluation.LoadCodeTable)
}

func readFile[T any](path string, load func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, errors.Wrapf(err, errors.ErrCodeBadRequest, "failed to open %q", path)
	}
	defer f.Close()
	v, err := load(f)
	if err != nil {
		return zero, errors.Wrapf(err, errors.GetCode(err), "%s", path)
	}
	return v, nil
}

// reportView renders an evaluation Report.
type reportView struct {
	*evaluation.Report
}

func (v reportView) String() string {
	var sb strings.Builder
	for _, n := range v.Notes {
		fmt.Fprintf(&sb, "%s: iou=%.4f precision=%.4f (%d/%d predicted correct, %d true)\n",
			n.NoteID, n.IOU, n.Precision, n.Correct, n.Predicted, n.Truth)
	}
	sb.WriteString(v.Summary())
	sb.WriteString("\n")
	return sb.String()
}

func (v reportView) TableHeaders() []string {
	return []string{"Note", "Truth", "Predicted", "Correct", "IOU", "Precision"}
}

func (v reportView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Notes)+1)
	for _, n := range v.Notes {
		rows = append(rows, []string{
			n.NoteID,
			strconv.Itoa(n.Truth),
			strconv.Itoa(n.Predicted),
			strconv.Itoa(n.Correct),
			strconv.FormatFloat(n.IOU, 'f', 4, 64),
			strconv.FormatFloat(n.Precision, 'f', 4, 64),
		})
	}
	rows = append(rows, []string{
		"MACRO", "", "", "",
		strconv.FormatFloat(v.MacroIOU, 'f', 4, 64),
		strconv.FormatFloat(v.MacroPrecision, 'f', 4, 64),
	})
	return rows
}
