// Command treegrid runs a one-shot grid competition resolution over a stem
// CSV file, without the service or a database. It writes the classified
// stems as CSV (or the full result as JSON) and logs the run summary.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/rakuri2026/forest-management-sub001/internal/report"
	"github.com/rakuri2026/forest-management-sub001/internal/treegrid"
)

func main() {
	stemsPath := flag.String("stems", "", "Stem CSV file (required; header row,x,y,diameter_cm,height_m,species)")
	spacing := flag.Float64("spacing", treegrid.DefaultSpacingM, "Grid cell edge length in metres")
	seedlingMax := flag.Float64("seedling-max", treegrid.DefaultSeedlingMaxDiameterCM, "Diameter below which a stem is a seedling, in cm")
	originX := flag.Float64("origin-x", math.NaN(), "Grid origin X in metres (set together with -origin-y)")
	originY := flag.Float64("origin-y", math.NaN(), "Grid origin Y in metres (set together with -origin-x)")
	output := flag.String("out", "", "Output CSV filename for classified stems (defaults to stdout)")
	jsonOut := flag.String("json", "", "Optional JSON filename for the full result")
	histogram := flag.String("histogram", "", "Optional PNG filename for the diameter histogram")
	flag.Parse()

	if *stemsPath == "" {
		log.Fatalf("stems file must be provided")
	}

	f, err := os.Open(*stemsPath)
	if err != nil {
		log.Fatalf("open stems: %v", err)
	}
	stems, err := treegrid.ParseStemsCSV(f)
	f.Close()
	if err != nil {
		log.Fatalf("parse stems: %v", err)
	}
	log.Printf("Read %d stems from %s", len(stems), *stemsPath)

	params := treegrid.Params{
		SpacingM:              *spacing,
		SeedlingMaxDiameterCM: *seedlingMax,
	}
	switch {
	case !math.IsNaN(*originX) && !math.IsNaN(*originY):
		params.OriginX = originX
		params.OriginY = originY
	case !math.IsNaN(*originX) || !math.IsNaN(*originY):
		log.Fatalf("-origin-x and -origin-y must be set together")
	}

	result, err := treegrid.Resolve(stems, params)
	if err != nil {
		log.Fatalf("resolve failed: %v", err)
	}

	s := result.Summary
	log.Printf("Classified %d stems: %d mother, %d felling, %d seedling (%d cells, %d contested)",
		s.Total, s.Mother, s.Felling, s.Seedling, s.CellsOccupied, s.ContestedCells)
	log.Printf("Grid: spacing %gm, origin (%.2f, %.2f)", params.SpacingM, result.OriginX, result.OriginY)

	if *output == "" {
		if err := treegrid.WriteStemsCSV(os.Stdout, result.Stems); err != nil {
			log.Fatalf("write stems: %v", err)
		}
	} else {
		out, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Could not create output file %s: %v", *output, err)
		}
		err = treegrid.WriteStemsCSV(out, result.Stems)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			log.Fatalf("Could not write output file %s: %v", *output, err)
		}
		log.Printf("Wrote classified stems to %s", *output)
	}

	if *jsonOut != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("encode result: %v", err)
		}
		if err := os.WriteFile(*jsonOut, data, 0o644); err != nil {
			log.Fatalf("Could not write JSON file %s: %v", *jsonOut, err)
		}
		log.Printf("Wrote result JSON to %s", *jsonOut)
	}

	if *histogram != "" {
		title := fmt.Sprintf("Stem Diameters (%d stems)", s.Total)
		if err := report.SaveDiameterHistogram(result.Stems, title, *histogram); err != nil {
			log.Fatalf("Could not save histogram %s: %v", *histogram, err)
		}
		mothers := report.Diameters(result.Stems, treegrid.ClassMother)
		if mothers.Count > 0 {
			log.Printf("Mother tree diameters: mean=%.1fcm median=%.1fcm max=%.1fcm",
				mothers.MeanCM, mothers.MedianCM, mothers.MaxCM)
		}
		log.Printf("Wrote diameter histogram to %s", *histogram)
	}
}
