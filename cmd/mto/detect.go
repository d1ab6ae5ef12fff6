package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ironsheep/mtobjects/internal/config"
	"github.com/ironsheep/mtobjects/internal/detect"
	"github.com/ironsheep/mtobjects/internal/logger"
)

func newPipeline(cfg *config.Config, log logger.Logger) (*detect.Pipeline, error) {
	return detect.New(cfg, log)
}

// detectT is the "detect" subcommand.
type detectT struct {
	app *app

	// Overrides; applied only when the flag was given.
	direction       string
	precision       string
	connectivity    int
	test            string
	sigmaMultiplier float64
	areaExponent    float64
	alpha           float64
	minArea         int
	floor           float64
	moveFactor      float64
	deblend         bool
	smooth          float64
	format          string

	// Outputs.
	jsonPath         string
	segmentationPath string
	overlayPath      string
	opacity          float64
	showIDs          bool
}

func newDetectCommand(a *app) *cobra.Command {
	d := &detectT{app: a}
	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "detect objects in an image",
		Long: `
Detect objects in a PNG, JPEG, GIF or TIFF image and print one row per
object. Flags override the configuration file. The segmentation map and an
overlay on the stretched image can be written as PNG files.
`,
		Args: cobra.ExactArgs(1),
		RunE: d.run,
	}

	f := cmd.Flags()
	f.StringVar(&d.direction, "direction", "", "bright or dark objects")
	f.StringVar(&d.precision, "precision", "", "single or double precision pixels")
	f.IntVar(&d.connectivity, "connectivity", 0, "pixel connectivity, 4 or 8")
	f.StringVar(&d.test, "test", "", "significance test: area-scaled or chi-squared")
	f.Float64Var(&d.sigmaMultiplier, "sigma-multiplier", 0, "area-scaled threshold in noise sigmas")
	f.Float64Var(&d.areaExponent, "area-exponent", 0, "exponent of the area scaling")
	f.Float64Var(&d.alpha, "alpha", 0, "false-positive rate of the chi-squared test")
	f.IntVar(&d.minArea, "min-area", 0, "smallest object area in pixels")
	f.Float64Var(&d.floor, "floor", 0, "noise sigmas beyond the sky a node must rise to be significant; 0 disables")
	f.Float64Var(&d.moveFactor, "move-factor", 0, "move object boundaries up by this many noise sigmas")
	f.BoolVar(&d.deblend, "deblend", true, "split significant branches into nested objects")
	f.Float64Var(&d.smooth, "smooth", 0, "Gaussian smoothing width in pixels")
	f.StringVarP(&d.format, "format", "f", "", "output format: table or json")
	f.StringVarP(&d.jsonPath, "output", "o", "", "write the JSON result to this file")
	f.StringVar(&d.segmentationPath, "segmentation", "", "write the segmentation map to this PNG file")
	f.StringVar(&d.overlayPath, "overlay", "", "write the objects over the stretched image to this PNG file")
	f.Float64Var(&d.opacity, "opacity", 0.5, "overlay opacity in [0, 1]")
	f.BoolVar(&d.showIDs, "show-ids", false, "draw object IDs on the overlay")
	return cmd
}

// apply copies the given flags over cfg.
func (d *detectT) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("direction") {
		cfg.Detection.Direction = d.direction
	}
	if f.Changed("precision") {
		cfg.Detection.Precision = d.precision
	}
	if f.Changed("connectivity") {
		cfg.Detection.Connectivity = d.connectivity
	}
	if f.Changed("test") {
		cfg.Significance.Test = d.test
	}
	if f.Changed("sigma-multiplier") {
		cfg.Significance.SigmaMultiplier = d.sigmaMultiplier
	}
	if f.Changed("area-exponent") {
		cfg.Significance.AreaExponent = d.areaExponent
	}
	if f.Changed("alpha") {
		cfg.Significance.Alpha = d.alpha
	}
	if f.Changed("min-area") {
		cfg.Significance.MinArea = d.minArea
	}
	if f.Changed("floor") {
		cfg.Significance.Floor = d.floor
	}
	if f.Changed("move-factor") {
		cfg.Significance.MoveFactor = d.moveFactor
	}
	if f.Changed("deblend") {
		cfg.Significance.Deblend = d.deblend
	}
	if f.Changed("smooth") {
		cfg.Preprocess.SmoothSigma = d.smooth
	}
	if f.Changed("format") {
		cfg.Output.Format = d.format
	}
}

func (d *detectT) run(cmd *cobra.Command, args []string) error {
	cfg := *d.app.cfg
	d.apply(cmd, &cfg)
	pipeline, err := newPipeline(&cfg, d.app.log)
	if err != nil {
		return err
	}

	img, err := imaging.Open(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to open image %s", args[0])
	}
	res, err := pipeline.Run(commandContext(cmd), img)
	if err != nil {
		return err
	}

	if err := d.writeFiles(res); err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	if cfg.Output.Format == "json" {
		return writeJSON(stdout, res)
	}
	printTable(stdout, args[0], res)
	return nil
}

func (d *detectT) writeFiles(res *detect.Result) error {
	if d.jsonPath != "" {
		f, err := os.Create(d.jsonPath)
		if err != nil {
			return errors.Wrap(err, "failed to create result file")
		}
		if err := writeJSON(f, res); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return errors.Wrap(err, "failed to write result file")
		}
	}
	if d.segmentationPath != "" {
		if err := imaging.Save(res.Segmentation(), d.segmentationPath); err != nil {
			return errors.Wrap(err, "failed to save segmentation map")
		}
	}
	if d.overlayPath != "" {
		over, err := res.Overlay(d.opacity, d.showIDs)
		if err != nil {
			return err
		}
		if err := imaging.Save(over, d.overlayPath); err != nil {
			return errors.Wrap(err, "failed to save overlay")
		}
	}
	return nil
}

func writeJSON(w io.Writer, res *detect.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(res), "failed to encode result")
}

func printTable(w io.Writer, name string, res *detect.Result) {
	fmt.Fprintf(w, "%s: %dx%d, %s objects, %s test, %s precision\n",
		name, res.Width, res.Height, res.Direction, res.Test, res.Precision)
	fmt.Fprintf(w, "background %.6g ± %.6g, %d nodes, %d objects\n",
		res.Background.Mean, res.Background.Sigma, res.Tree.Nodes, len(res.Objects))
	if len(res.Objects) == 0 {
		return
	}

	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"ID", "Parent", "X", "Y", "Area", "Flux", "Peak", "A", "B", "Theta", "Score"})
	tbl.SetAlignment(tablewriter.ALIGN_RIGHT)
	tbl.SetAutoFormatHeaders(false)
	for _, o := range res.Objects {
		tbl.Append([]string{
			strconv.Itoa(int(o.ID)),
			strconv.Itoa(int(o.Parent)),
			fmt.Sprintf("%.2f", o.X),
			fmt.Sprintf("%.2f", o.Y),
			strconv.Itoa(o.Area),
			fmt.Sprintf("%.6g", o.Flux),
			fmt.Sprintf("%.6g", o.Peak),
			fmt.Sprintf("%.2f", o.A),
			fmt.Sprintf("%.2f", o.B),
			fmt.Sprintf("%.1f", o.Theta),
			fmt.Sprintf("%.3g", o.Score),
		})
	}
	tbl.Render()
}
