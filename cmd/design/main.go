// Command design runs a one-shot sampling design from files, without the
// service or a database. It reads a boundary GeoJSON file plus optional
// block and parameter files, then writes the design as JSON and optionally
// as a plot-center CSV and a spacing histogram PNG.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/rakuri2026/forest-management-sub001/internal/forest"
	"github.com/rakuri2026/forest-management-sub001/internal/geo"
	"github.com/rakuri2026/forest-management-sub001/internal/report"
	"github.com/rakuri2026/forest-management-sub001/internal/sampling"
)

// namedGeometry is one entry of the -blocks file: a block name with its
// sub-area geometry in GeoJSON.
type namedGeometry struct {
	Name     string          `json:"name"`
	Geometry json.RawMessage `json:"geometry"`
}

func main() {
	boundaryPath := flag.String("boundary", "", "Boundary GeoJSON file (required)")
	blocksPath := flag.String("blocks", "", "JSON file with named block geometries")
	paramsPath := flag.String("params", "", "JSON file with design parameters (defaults, overrides, exclusion)")
	seed := flag.Int64("seed", 0, "Seed for a reproducible run (0 derives one from the design ID)")
	output := flag.String("out", "", "Output JSON filename (defaults to stdout)")
	csvOut := flag.String("csv", "", "Optional CSV filename for the plot centers")
	histogram := flag.String("histogram", "", "Optional PNG filename for the plot spacing histogram")
	flag.Parse()

	if *boundaryPath == "" {
		log.Fatalf("boundary file must be provided")
	}

	raw, err := os.ReadFile(*boundaryPath)
	if err != nil {
		log.Fatalf("read boundary: %v", err)
	}
	boundary, err := geo.NormalizeBoundary(raw)
	if err != nil {
		log.Fatalf("invalid boundary: %v", err)
	}
	log.Printf("Boundary: %.2f ha, UTM zone %d", boundary.AreaHa, boundary.Projector.Zone)

	var subs []forest.SubArea
	if *blocksPath != "" {
		subs = loadBlocks(*blocksPath)
	}
	blocks, failures := forest.Partition(boundary, subs)

	var req sampling.Request
	if *paramsPath != "" {
		data, err := os.ReadFile(*paramsPath)
		if err != nil {
			log.Fatalf("read params: %v", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			log.Fatalf("invalid params: %v", err)
		}
	}
	if *seed != 0 {
		req.Seed = seed
	}

	design, err := sampling.Generate(boundary, blocks, failures, req)
	if err != nil {
		log.Fatalf("design failed: %v", err)
	}

	log.Printf("Design %s: %d points across %d blocks (seed %d)",
		design.DesignID, design.TotalPoints, len(design.Blocks), design.Seed)
	for _, w := range design.Warnings {
		if w.Block != "" {
			log.Printf("warning [%s] block %s: %s", w.Code, w.Block, w.Message)
		} else {
			log.Printf("warning [%s]: %s", w.Code, w.Message)
		}
	}

	out, err := json.MarshalIndent(design, "", "  ")
	if err != nil {
		log.Fatalf("encode design: %v", err)
	}
	if *output == "" {
		fmt.Println(string(out))
	} else {
		if err := os.WriteFile(*output, out, 0o644); err != nil {
			log.Fatalf("Could not write output file %s: %v", *output, err)
		}
		log.Printf("Wrote design JSON to %s", *output)
	}

	if *csvOut != "" {
		if err := writePointsCSV(*csvOut, design); err != nil {
			log.Fatalf("Could not write CSV file %s: %v", *csvOut, err)
		}
		log.Printf("Wrote plot centers to %s", *csvOut)
	}

	if *histogram != "" {
		if err := report.SaveSpacingHistogram(design, *histogram); err != nil {
			log.Fatalf("Could not save histogram %s: %v", *histogram, err)
		}
		if stats, err := report.Spacing(design); err == nil {
			log.Printf("Plot spacing: mean=%.1fm median=%.1fm min=%.1fm max=%.1fm",
				stats.MeanM, stats.MedianM, stats.MinM, stats.MaxM)
		}
		log.Printf("Wrote spacing histogram to %s", *histogram)
	}
}

// loadBlocks reads the -blocks file. Entries with unparseable geometry are
// skipped with a warning, matching how the service isolates bad blocks.
func loadBlocks(path string) []forest.SubArea {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read blocks: %v", err)
	}
	var entries []namedGeometry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Fatalf("invalid blocks file: %v", err)
	}

	var subs []forest.SubArea
	for _, e := range entries {
		if e.Name == "" {
			log.Printf("warning: skipping block with empty name")
			continue
		}
		g, err := geo.ParsePolygonal(e.Geometry)
		if err != nil {
			log.Printf("warning: skipping block %q: %v", e.Name, err)
			continue
		}
		subs = append(subs, forest.SubArea{Name: e.Name, Geometry: g})
	}
	return subs
}

func writePointsCSV(path string, d *sampling.Design) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"sequence", "block", "longitude", "latitude", "easting", "northing"}); err != nil {
		return err
	}
	for _, b := range d.Blocks {
		for _, p := range b.Points {
			rec := []string{
				strconv.Itoa(p.Sequence),
				p.Block,
				strconv.FormatFloat(p.Longitude, 'f', 6, 64),
				strconv.FormatFloat(p.Latitude, 'f', 6, 64),
				strconv.FormatFloat(p.Easting, 'f', 2, 64),
				strconv.FormatFloat(p.Northing, 'f', 2, 64),
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}
