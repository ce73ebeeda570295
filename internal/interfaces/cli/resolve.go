package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ClinTerm-Intelligence/internal/bootstrap"
	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
)

func newResolveCmd() *cobra.Command {
	var lineContext string
	cmd := &cobra.Command{
		Use:   "resolve TERM",
		Short: "Resolve a single clinical term to a SNOMED CT concept",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			rt, err := cliCtx.Deps.OpenRuntime(cmd.Context(), cliCtx.Config, cliCtx.Logger, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.CodingService().ResolveTerm(cmd.Context(), strings.Join(args, " "), lineContext)
			if err != nil {
				return err
			}
			return PrintResult(cmd, resolutionView{res})
		},
	}
	cmd.Flags().StringVar(&lineContext, "context", "", "source sentence used to disambiguate the direct match")
	return cmd
}

// resolutionView renders one Resolution.
type resolutionView struct {
	coding.Resolution
}

func (v resolutionView) String() string {
	var sb strings.Builder
	if !v.Resolved {
		fmt.Fprintf(&sb, "%s -> no match\n", v.Term)
	} else {
		fmt.Fprintf(&sb, "%s -> %s %q\n", v.Term, v.ConceptID(), v.Candidate.Display)
		fmt.Fprintf(&sb, "  rating:   %d\n  strategy: %s\n", v.Rating, v.Strategy)
		if v.RefinedTerm != "" {
			fmt.Fprintf(&sb, "  refined:  %s\n", v.RefinedTerm)
		}
	}
	for _, t := range v.Trace {
		fmt.Fprintf(&sb, "  tier %-11s query=%q", t.Strategy, t.Query)
		if t.Candidate != nil {
			fmt.Fprintf(&sb, " candidate=%s rating=%d", t.Candidate.Code, t.Rating)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (v resolutionView) TableHeaders() []string {
	return []string{"Term", "Concept", "Display", "Rating", "Strategy", "Refined"}
}

func (v resolutionView) TableRows() [][]string {
	display := ""
	if v.Candidate != nil {
		display = v.Candidate.Display
	}
	return [][]string{{
		v.Term,
		v.ConceptID(),
		display,
		strconv.Itoa(int(v.Rating)),
		v.Strategy.String(),
		v.RefinedTerm,
	}}
}
