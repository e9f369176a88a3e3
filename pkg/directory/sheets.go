package directory

import (
	"context"
	"fmt"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// RosterSource is the spreadsheet reader a directory can be built from
type RosterSource interface {
	ListRadiologists(ctx context.Context, spreadsheetID, tab string) ([]model.Radiologist, error)
	ListLocations(ctx context.Context, spreadsheetID, tab string) ([]model.Location, error)
}

// FromSheets snapshots the roster and location tabs of a spreadsheet
func FromSheets(ctx context.Context, source RosterSource, spreadsheetID, radiologistsTab, locationsTab string) (*Directory, error) {
	locations, err := source.ListLocations(ctx, spreadsheetID, locationsTab)
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}

	rads, err := source.ListRadiologists(ctx, spreadsheetID, radiologistsTab)
	if err != nil {
		return nil, fmt.Errorf("failed to load radiologists: %w", err)
	}

	return New(rads, locations)
}
