// Package directory holds the read-only radiologist and location reference data the engine
// consults. Records come from a YAML file or a Google Sheet roster.
package directory

import (
	"context"
	"fmt"
	"sort"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// Directory is an immutable in-memory view; safe for concurrent readers
type Directory struct {
	radiologists map[int]model.Radiologist
	locations    map[string]model.Location
}

// New validates the records and indexes them. Radiologists referencing unknown locations are
// rejected when any locations are supplied.
func New(rads []model.Radiologist, locations []model.Location) (*Directory, error) {
	d := &Directory{
		radiologists: make(map[int]model.Radiologist, len(rads)),
		locations:    make(map[string]model.Location, len(locations)),
	}

	for _, loc := range locations {
		if err := loc.Validate(); err != nil {
			return nil, err
		}
		if _, dup := d.locations[loc.Name]; dup {
			return nil, fmt.Errorf("duplicate location %q", loc.Name)
		}
		d.locations[loc.Name] = loc
	}

	for _, rad := range rads {
		if err := rad.Validate(); err != nil {
			return nil, err
		}
		if _, dup := d.radiologists[rad.ID]; dup {
			return nil, fmt.Errorf("duplicate radiologist id %d", rad.ID)
		}
		if len(d.locations) > 0 {
			for _, name := range rad.Locations {
				if _, ok := d.locations[name]; !ok {
					return nil, fmt.Errorf("radiologist %d: %w: %q", rad.ID, model.ErrLocationNotFound, name)
				}
			}
		}
		d.radiologists[rad.ID] = rad
	}

	return d, nil
}

func (d *Directory) GetRadiologist(ctx context.Context, id int) (model.Radiologist, error) {
	if err := ctx.Err(); err != nil {
		return model.Radiologist{}, err
	}
	rad, ok := d.radiologists[id]
	if !ok {
		return model.Radiologist{}, fmt.Errorf("%w: %d", model.ErrRadiologistNotFound, id)
	}
	return rad, nil
}

func (d *Directory) GetLocation(ctx context.Context, name string) (model.Location, error) {
	if err := ctx.Err(); err != nil {
		return model.Location{}, err
	}
	loc, ok := d.locations[name]
	if !ok {
		return model.Location{}, fmt.Errorf("%w: %q", model.ErrLocationNotFound, name)
	}
	return loc, nil
}

// ListRadiologists returns every radiologist ordered by id
func (d *Directory) ListRadiologists(ctx context.Context) ([]model.Radiologist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rads := make([]model.Radiologist, 0, len(d.radiologists))
	for _, rad := range d.radiologists {
		rads = append(rads, rad)
	}
	sort.Slice(rads, func(i, j int) bool { return rads[i].ID < rads[j].ID })
	return rads, nil
}

// ListLocations returns every location ordered by name
func (d *Directory) ListLocations(ctx context.Context) ([]model.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locations := make([]model.Location, 0, len(d.locations))
	for _, loc := range d.locations {
		locations = append(locations, loc)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].Name < locations[j].Name })
	return locations, nil
}
