package sheet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"rotathumb/pkg/render"
)

var (
	// ErrSheetFailed is returned when the contact sheet cannot be built
	ErrSheetFailed = errors.New("contact sheet creation failed")
)

// Config holds layout settings for the contact sheet
type Config struct {
	Columns         int     // Thumbnails per row
	CellPadding     float64 // Space around each thumbnail in mm
	CaptionHeight   float64 // Height of the angle caption in mm
	FontName        string  // Core PDF font
	FontSize        float64 // Caption font size
	MarginLeft      float64 // Left margin in mm
	MarginRight     float64 // Right margin in mm
	MarginTop       float64 // Top margin in mm
	MarginBottom    float64 // Bottom margin in mm
	PageOrientation string  // P for portrait, L for landscape
	PageSize        string  // A4, Letter, ...
	Title           string  // Document title
	Author          string  // Document author
	CreationDate    string  // Printed in the header
}

// DefaultConfig returns a seven column A4 portrait layout
func DefaultConfig() Config {
	return Config{
		Columns:         7,
		CellPadding:     2,
		CaptionHeight:   5,
		FontName:        "Helvetica",
		FontSize:        8,
		MarginLeft:      15,
		MarginRight:     15,
		MarginTop:       15,
		MarginBottom:    15,
		PageOrientation: "P",
		PageSize:        "A4",
		Title:           "Rotation Sweep",
		Author:          "rotathumb",
		CreationDate:    time.Now().Format("2006-01-02"),
	}
}

// Create writes a contact sheet for the manifest to outputPath
func Create(manifest *render.Manifest, outputPath string, config Config) error {
	pdf, err := build(manifest, config)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrSheetFailed, err)
		}
	}
	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("%w: %v", ErrSheetFailed, err)
	}
	return nil
}

// Write renders the contact sheet to w
func Write(manifest *render.Manifest, w io.Writer, config Config) error {
	pdf, err := build(manifest, config)
	if err != nil {
		return err
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("%w: %v", ErrSheetFailed, err)
	}
	return nil
}

func build(manifest *render.Manifest, config Config) (*gofpdf.Fpdf, error) {
	if manifest == nil || len(manifest.Outputs) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrSheetFailed)
	}
	if config.Columns <= 0 {
		config.Columns = 1
	}

	pdf := gofpdf.New(config.PageOrientation, "mm", config.PageSize, "")
	pdf.SetTitle(config.Title, true)
	pdf.SetAuthor(config.Author, true)
	pdf.SetCreator("rotathumb", true)
	pdf.SetMargins(config.MarginLeft, config.MarginTop, config.MarginRight)
	pdf.SetAutoPageBreak(false, config.MarginBottom)
	pdf.SetFont(config.FontName, "", config.FontSize)

	pageW, pageH := pdf.GetPageSize()
	usableW := pageW - config.MarginLeft - config.MarginRight
	cellW := usableW / float64(config.Columns)
	cellH := cellW + config.CaptionHeight
	imgBox := cellW - 2*config.CellPadding

	header := func() float64 {
		pdf.AddPage()
		pdf.SetXY(config.MarginLeft, config.MarginTop)
		pdf.CellFormat(usableW/2, 6, filepath.Base(manifest.Source), "", 0, "L", false, 0, "")
		pdf.CellFormat(usableW/2, 6, fmt.Sprintf("Created: %s", config.CreationDate), "", 1, "R", false, 0, "")
		return config.MarginTop + 10
	}

	y := header()
	for i, out := range manifest.Outputs {
		col := i % config.Columns
		if col == 0 && i > 0 {
			y += cellH
		}
		if y+cellH > pageH-config.MarginBottom {
			y = header()
		}

		name := fmt.Sprintf("frame-%d-%d", i, out.Angle)
		if err := registerFrame(pdf, name, out.Path); err != nil {
			return nil, err
		}

		// Scale the frame into the cell keeping its aspect ratio
		w, h := imgBox, imgBox
		if out.Width > out.Height && out.Width > 0 {
			h = imgBox * float64(out.Height) / float64(out.Width)
		} else if out.Height > 0 {
			w = imgBox * float64(out.Width) / float64(out.Height)
		}
		x := config.MarginLeft + float64(col)*cellW
		pdf.ImageOptions(name, x+(cellW-w)/2, y+config.CellPadding+(imgBox-h)/2, w, h, false,
			gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

		pdf.SetXY(x, y+cellW)
		pdf.CellFormat(cellW, config.CaptionHeight, fmt.Sprintf("%d deg", out.Angle), "", 0, "C", false, 0, "")
	}

	// Page numbers
	nPages := pdf.PageCount()
	for pageNum := 1; pageNum <= nPages; pageNum++ {
		pdf.SetPage(pageNum)
		pdf.SetXY(0, pageH-config.MarginBottom/2-5)
		pdf.CellFormat(pageW, 10, fmt.Sprintf("Page %d of %d", pageNum, nPages), "", 0, "C", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSheetFailed, err)
	}
	return pdf, nil
}

func registerFrame(pdf *gofpdf.Fpdf, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSheetFailed, err)
	}
	defer f.Close()

	pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, f)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("%w: frame %s: %v", ErrSheetFailed, path, err)
	}
	return nil
}
