// Command parcel-report runs parcel analyses offline against a directory of
// reference layers and prints the JSON result.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ilemi-bj/foncier-geo/internal/analysis"
	"github.com/ilemi-bj/foncier-geo/internal/boundary"
	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/layers"
	"github.com/ilemi-bj/foncier-geo/internal/logger"
	"github.com/ilemi-bj/foncier-geo/internal/reproject"
)

type globals struct {
	dataDir  string
	crs      string
	logLevel string
	timeout  time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "parcel-report",
		Short:        "Check a land parcel against the reference layers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.dataDir, "data-dir", "d", "./data", "directory holding the reference .geojson layers")
	root.PersistentFlags().StringVar(&g.crs, "crs", "EPSG:32631", "CRS of the boundary coordinates")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "debug, info, warn or error")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "analysis deadline")

	root.AddCommand(analyzeCmd(g))
	root.AddCommand(overlapsCmd(g))
	root.AddCommand(reportCmd(g))
	root.AddCommand(layersCmd())
	return root
}

func analyzeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [boundary.json|-]",
		Short: "Find overlaps and build the full report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := g.service(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			points, err := readPoints(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			res, err := svc.Analyze(ctx, points)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func overlapsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "overlaps [boundary.json|-]",
		Short: "List the reference features the parcel overlaps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := g.service(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			points, err := readPoints(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			res, err := svc.FindOverlaps(ctx, points)
			if err != nil {
				return fmt.Errorf("find overlaps: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func reportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "report [request.json|-]",
		Short: "Build a report from a saved overlap analysis",
		Long: "The request carries \"terrainCoordinates\" and either \"overlaps\" " +
			"(with optional \"yesNoData\") or an \"analysis\" object.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.service(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			b, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			req, err := boundary.DecodeReportRequest(b)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			rep, err := svc.Report(cmd.Context(), req.Terrain, req.Analysis)
			if err != nil {
				return fmt.Errorf("report: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"report": rep})
		},
	}
}

func layersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "Print the reference layer registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), map[string]any{"layers": layers.All()})
		},
	}
}

func (g *globals) service(logOut io.Writer) (*analysis.Service, error) {
	zl := logger.Build(logger.Config{Level: g.logLevel, Console: true, Component: "parcel-report"}, logOut)
	log := logger.NewSlog(&zl)

	geo, err := reproject.New(g.crs)
	if err != nil {
		return nil, fmt.Errorf("source crs %q: %w", g.crs, err)
	}
	if st, err := os.Stat(g.dataDir); err != nil || !st.IsDir() {
		log.Warn("data directory not readable, every layer will be empty", "dir", g.dataDir)
	}
	store := layers.NewStore(g.dataDir, layers.WithLogger(log))
	return analysis.New(store, geo, analysis.Options{Timeout: g.timeout, Logger: log}), nil
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return b, nil
}

func readPoints(stdin io.Reader, name string) ([]model.IncomingPoint, error) {
	b, err := readInput(stdin, name)
	if err != nil {
		return nil, err
	}
	points, err := boundary.DecodePoints(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return points, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
