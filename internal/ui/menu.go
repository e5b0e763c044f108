package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terrascan/terrascan/internal/analysis"
	"github.com/terrascan/terrascan/internal/session"
)

var errExit = errors.New("exit")

type menuOption struct {
	title   string
	handler func(ctx context.Context) error
}

// Console is the interactive numbered menu driving a single session.
type Console struct {
	in      *bufio.Reader
	out     io.Writer
	service *analysis.Service
	session *session.Session
	log     *logrus.Entry
	outDir  string
	now     func() time.Time
	spinner bool

	// NDVI renders of each successful analysis, oldest first, for the timelapse export.
	frames []image.Image
}

// NewConsole builds a console reading choices from in and writing to out.
// Exports go under outDir.
func NewConsole(in io.Reader, out io.Writer, service *analysis.Service, threshold float64, outDir string, logger *logrus.Logger) *Console {
	return &Console{
		in:      newReader(in),
		out:     out,
		service: service,
		session: session.New(threshold, time.Now()),
		log:     logger.WithField("component", "ui"),
		outDir:  outDir,
		now:     time.Now,
		spinner: true,
	}
}

func (c *Console) Session() *session.Session {
	return c.session
}

// ShowMenu displays the main menu and handles user input until the user exits,
// input ends or ctx is cancelled.
func (c *Console) ShowMenu(ctx context.Context) error {
	menuOptions := []menuOption{
		{"Load an area of interest from a GeoJSON file", c.LoadArea},
		{"Set the NDVI threshold", c.SetThreshold},
		{"Run an analysis", c.RunAnalysis},
		{"Show analysis history", c.ShowHistory},
		{"Export the latest report as CSV", c.ExportReport},
		{"Export the latest analysis images", c.ExportImages},
		{"Export the history as a timelapse video", c.ExportTimelapse},
		{"Exit the application", func(context.Context) error { return errExit }},
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintf(c.out, "%s===================%s\n", ColorBlue, ColorReset)
		for i, opt := range menuOptions {
			fmt.Fprintf(c.out, "%s%d. %s%s\n", ColorBlue, i+1, opt.title, ColorReset)
		}

		choice, err := c.ReadInt("Please enter your choice: ", 1, len(menuOptions))
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			c.PrintError(err.Error())
			continue
		}

		err = menuOptions[choice-1].handler(ctx)
		switch {
		case errors.Is(err, errExit):
			fmt.Fprintln(c.out, "Exiting...")
			return nil
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			c.log.WithError(err).WithField("option", choice).Debug("menu action failed")
			c.PrintError(err.Error())
		}
	}
}
