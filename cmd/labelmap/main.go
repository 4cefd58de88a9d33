// Command labelmap prints the category index a label map produces for a given class count.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/nvr-ai/go-detect/labelmap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		labelsPath  string
		numClasses  int
		displayName bool
		format      string
		verbose     bool
	)
	flag.StringVar(&labelsPath, "labels", "training/labelmap.pbtxt", "Path to the label map (.pbtxt)")
	flag.IntVar(&numClasses, "num-classes", 4, "Highest class id to keep")
	flag.BoolVar(&displayName, "display-name", true, "Prefer display_name over name")
	flag.StringVar(&format, "format", "text", "Output format: text or json")
	flag.BoolVar(&verbose, "v", false, "Log skipped label map items")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	index, err := labelmap.Build(labelsPath, numClasses, displayName, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build category index")
	}

	if err := write(os.Stdout, index, format); err != nil {
		log.WithError(err).Fatal("failed to print category index")
	}
}

func write(w io.Writer, index labelmap.CategoryIndex, format string) error {
	categories := make([]labelmap.Category, 0, index.Len())
	for _, id := range index.IDs() {
		cat, _ := index.Lookup(id)
		categories = append(categories, cat)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(categories)
	case "text":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME")
		for _, cat := range categories {
			fmt.Fprintf(tw, "%d\t%s\n", cat.ID, cat.Name)
		}
		return tw.Flush()
	default:
		return errors.Errorf("unknown format %q", format)
	}
}
