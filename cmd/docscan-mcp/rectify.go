package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/docscan-mcp/internal/capture"
	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/ocr"
	"github.com/ironsheep/docscan-mcp/internal/storage"
)

var (
	rectifyOutput   string
	rectifyFormat   string
	rectifyQuality  int
	rectifyCorners  string
	rectifyNoDetect bool
	rectifySave     bool
	rectifyOwner    string
	rectifyFolder   string
	rectifyName     string
	rectifyTags     []string
	rectifyOCR      bool
)

var rectifyCmd = &cobra.Command{
	Use:   "rectify <image>",
	Short: "Detect the document in an image and write the corrected page",
	Long: `Runs one capture session on an image file: detect borders (unless
--no-detect), apply --corners if given, and rectify.

Corners are four normalized points in TL, TR, BR, BL order:
  --corners "0.1,0.1 0.9,0.1 0.9,0.9 0.1,0.9"

The page is written to --output, or stored as a document with --save.`,
	Args: cobra.ExactArgs(1),
	RunE: runRectify,
}

func init() {
	f := rectifyCmd.Flags()
	f.StringVarP(&rectifyOutput, "output", "o", "", "output file (default <image>-scan.<ext>)")
	f.StringVar(&rectifyFormat, "format", "jpeg", "output format: jpeg or png")
	f.IntVar(&rectifyQuality, "quality", 0, "JPEG quality 1-100 (default from configuration)")
	f.StringVar(&rectifyCorners, "corners", "", "explicit corners, overriding detection")
	f.BoolVar(&rectifyNoDetect, "no-detect", false, "skip automatic border detection")
	f.BoolVar(&rectifySave, "save", false, "store the page in the document store")
	f.StringVar(&rectifyOwner, "owner", "", "document owner (default from configuration)")
	f.StringVar(&rectifyFolder, "folder", "", "folder id for the stored document")
	f.StringVar(&rectifyName, "name", "", "document name (default the image file name)")
	f.StringSliceVar(&rectifyTags, "tag", nil, "document tag (repeatable)")
	f.BoolVar(&rectifyOCR, "ocr", false, "extract text and store it with the document")
}

func runRectify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input := args[0]

	format, err := imaging.ParseFormat(rectifyFormat)
	if err != nil {
		return err
	}
	quality := rectifyQuality
	if quality == 0 {
		quality = cfg.Capture.JPEGQuality
	}

	var corners *geometry.Quadrilateral
	if rectifyCorners != "" {
		q, err := parseCorners(rectifyCorners)
		if err != nil {
			return err
		}
		corners = &q
	}

	cache := imaging.NewImageCache()
	engine, err := newEngine(cfg, cache)
	if err != nil {
		return err
	}
	if _, err := engine.CaptureFrom(ctx, capture.NewFileSource(input, cache)); err != nil {
		return err
	}

	quad, err := engine.DetectBorders(ctx, !rectifyNoDetect && corners == nil)
	if err != nil {
		return err
	}
	if corners != nil {
		if _, err := engine.SetQuadrilateral(*corners); err != nil {
			return err
		}
	} else if quad == nil {
		if _, err := engine.SetQuadrilateral(geometry.FullFrame()); err != nil {
			return err
		}
	}

	page, err := engine.Commit(ctx)
	if err != nil {
		return err
	}
	data, contentType, err := imaging.Encode(page.Image, format, quality)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !rectifySave {
		path := rectifyOutput
		if path == "" {
			path = strings.TrimSuffix(input, filepath.Ext(input)) + "-scan" + format.Extension()
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write page: %w", err)
		}
		fmt.Fprintf(out, "%s (%dx%d, %s)\n", path, page.Width, page.Height, page.Quad)
		return nil
	}

	owner := rectifyOwner
	if owner == "" {
		owner = cfg.Storage.DefaultOwner
	}
	name := rectifyName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	}
	var text string
	if rectifyOCR {
		text, err = ocr.ExtractWith(page.Image, ocr.Options{Language: cfg.OCR.Language, TessdataPrefix: cfg.OCR.TessdataPrefix})
		if err != nil {
			logger.Warn("ocr failed", zap.Error(err))
		}
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.Save(ctx, storage.NewDocument{
		OwnerID:     owner,
		FolderID:    rectifyFolder,
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Tags:        rectifyTags,
		OCRText:     text,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%dx%d, %s)\n", id, page.Width, page.Height, page.Quad)
	return nil
}

// parseCorners reads "x,y x,y x,y x,y" (spaces or semicolons between points).
func parseCorners(s string) (geometry.Quadrilateral, error) {
	var q geometry.Quadrilateral
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ';' })
	if len(fields) != 4 {
		return q, fmt.Errorf("expected 4 corners, got %d", len(fields))
	}
	for i, field := range fields {
		xy := strings.Split(field, ",")
		if len(xy) != 2 {
			return q, fmt.Errorf("corner %d: want x,y, got %q", i, field)
		}
		x, err := strconv.ParseFloat(xy[0], 64)
		if err != nil {
			return q, fmt.Errorf("corner %d: %w", i, err)
		}
		y, err := strconv.ParseFloat(xy[1], 64)
		if err != nil {
			return q, fmt.Errorf("corner %d: %w", i, err)
		}
		q[i] = geometry.Point{X: x, Y: y}
	}
	return q, nil
}
