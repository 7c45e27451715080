// Package forest models a forest boundary and its named sampling blocks.
// A block is a sub-area of the boundary with its own resolved sampling
// parameters; a boundary without explicit blocks is treated as one implicit
// block covering the whole forest.
package forest

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"github.com/rakuri2026/forest-management-sub001/internal/geo"
)

// DefaultBlockName is the name of the implicit block created when a forest
// has no explicit partition.
const DefaultBlockName = "default"

// BlockOutOfBoundsError reports a named sub-area that shares no area with
// its forest boundary. It fails only that block; sibling blocks continue.
type BlockOutOfBoundsError struct {
	Block string
}

func (e *BlockOutOfBoundsError) Error() string {
	return fmt.Sprintf("block %q shares no area with the forest boundary", e.Block)
}

// SubArea is a named candidate block in geographic coordinates, as uploaded.
type SubArea struct {
	Name     string
	Geometry geom.Polygonal
}

// Block is a resolved sub-area: clipped to the boundary, reprojected to the
// boundary's UTM plane, with its area cached in hectares.
type Block struct {
	Name   string
	Planar geom.Polygonal
	AreaHa float64
}

// Failure pairs a block name with the error that excluded it from a
// partition. Failures are isolated so one bad block never aborts a design.
type Failure struct {
	Block string
	Err   error
}

// Partition resolves a boundary and optional named sub-areas into blocks.
// Sub-areas are reprojected into the boundary's plane and clipped to it;
// those with zero intersection fail with BlockOutOfBoundsError. With no
// sub-areas it returns the single implicit default block.
func Partition(boundary *geo.Boundary, subs []SubArea) ([]Block, []Failure) {
	if len(subs) == 0 {
		return []Block{{
			Name:   DefaultBlockName,
			Planar: boundary.Planar,
			AreaHa: boundary.AreaHa,
		}}, nil
	}

	blocks := make([]Block, 0, len(subs))
	var failures []Failure
	seen := make(map[string]bool, len(subs))

	for _, sub := range subs {
		if sub.Name == "" {
			failures = append(failures, Failure{Block: sub.Name, Err: fmt.Errorf("block name must not be empty")})
			continue
		}
		if seen[sub.Name] {
			failures = append(failures, Failure{Block: sub.Name, Err: fmt.Errorf("duplicate block name %q", sub.Name)})
			continue
		}
		seen[sub.Name] = true

		b, err := resolveBlock(boundary, sub)
		if err != nil {
			failures = append(failures, Failure{Block: sub.Name, Err: err})
			continue
		}
		blocks = append(blocks, b)
	}

	return blocks, failures
}

func resolveBlock(boundary *geo.Boundary, sub SubArea) (Block, error) {
	if err := geo.ValidatePolygonal(sub.Geometry); err != nil {
		return Block{}, err
	}

	planar, err := boundary.Projector.ToPlanar(sub.Geometry)
	if err != nil {
		return Block{}, err
	}

	clipped := planar.Intersection(boundary.Planar)
	if clipped == nil {
		return Block{}, &BlockOutOfBoundsError{Block: sub.Name}
	}
	area := math.Abs(clipped.Area())
	if area <= 0 || math.IsNaN(area) {
		return Block{}, &BlockOutOfBoundsError{Block: sub.Name}
	}

	return Block{
		Name:   sub.Name,
		Planar: clipped,
		AreaHa: geo.Hectares(area),
	}, nil
}
