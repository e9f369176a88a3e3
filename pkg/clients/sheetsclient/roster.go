package sheetsclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// Column names in the radiologists tab. Columns not listed as required may be absent.
var (
	radiologistRequiredFields = []string{"ID", "Name", "Subspecialty", "Locations"}
	radiologistOptionalFields = []string{
		"Email",
		"Board Certified",
		"Cert Expiry",
		"CME Credits",
		"CME Required",
		"License Number",
		"Last 30 Days",
		"Year Total",
		"Weekend Calls YTD",
		"Night Calls YTD",
		"Bidding Opt In",
		"Max Auto Bid",
		"Preferred Mode",
		"Blackout Dates",
		"Blackout Rules",
		"Max Weekend Calls",
	}

	locationRequiredFields = []string{"Name"}
	locationOptionalFields = []string{"Address", "Modalities", "Weekday Day", "Weekday Night", "Weekend Day", "Weekend Night"}
)

// ListRadiologists reads and parses the radiologist roster tab
func (c *Client) ListRadiologists(ctx context.Context, spreadsheetID, tab string) ([]model.Radiologist, error) {
	values, err := c.GetValues(ctx, spreadsheetID, tab)
	if err != nil {
		return nil, fmt.Errorf("failed to get radiologist data: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("radiologist sheet is empty")
	}

	rads, err := ParseRadiologists(values)
	if err != nil {
		return nil, fmt.Errorf("failed to parse radiologists: %w", err)
	}
	return rads, nil
}

// ListLocations reads and parses the locations tab
func (c *Client) ListLocations(ctx context.Context, spreadsheetID, tab string) ([]model.Location, error) {
	values, err := c.GetValues(ctx, spreadsheetID, tab)
	if err != nil {
		return nil, fmt.Errorf("failed to get location data: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("location sheet is empty")
	}

	locations, err := ParseLocations(values)
	if err != nil {
		return nil, fmt.Errorf("failed to parse locations: %w", err)
	}
	return locations, nil
}

// row gives typed access to a data row by header name
type row struct {
	index map[string]int
	cells []interface{}
	line  int
}

func headerIndex(header []interface{}, required, optional []string) (map[string]int, error) {
	index := make(map[string]int)
	for i, cell := range header {
		if name, ok := cell.(string); ok {
			index[strings.TrimSpace(name)] = i
		}
	}
	for _, field := range required {
		if _, ok := index[field]; !ok {
			return nil, fmt.Errorf("missing required field in header: %s", field)
		}
	}
	known := make(map[string]int, len(required)+len(optional))
	for _, field := range append(append([]string(nil), required...), optional...) {
		if i, ok := index[field]; ok {
			known[field] = i
		}
	}
	return known, nil
}

func (r row) str(field string) string {
	i, ok := r.index[field]
	if !ok || i >= len(r.cells) {
		return ""
	}
	switch v := r.cells[i].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func (r row) int(field string) (int, error) {
	s := r.str(field)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", ""))
	if err != nil {
		return 0, fmt.Errorf("row %d: %s must be a whole number, got %q", r.line, field, s)
	}
	return n, nil
}

func (r row) bool(field string) bool {
	switch strings.ToLower(r.str(field)) {
	case "true", "yes", "y", "x", "1":
		return true
	}
	return false
}

// list splits a cell on commas
func (r row) list(field string) []string {
	return split(r.str(field), ",")
}

// lines splits a cell on newlines; used for recurrence rules, which contain commas and semicolons
func (r row) lines(field string) []string {
	return split(r.str(field), "\n")
}

func split(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseRadiologists converts raw spreadsheet data into validated radiologists. Rows without an
// ID are skipped.
func ParseRadiologists(raw [][]interface{}) ([]model.Radiologist, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("no header row found")
	}
	index, err := headerIndex(raw[0], radiologistRequiredFields, radiologistOptionalFields)
	if err != nil {
		return nil, err
	}

	rads := make([]model.Radiologist, 0, len(raw)-1)
	for i := 1; i < len(raw); i++ {
		r := row{index: index, cells: raw[i], line: i + 1}
		if r.str("ID") == "" {
			continue
		}

		rad, err := parseRadiologist(r)
		if err != nil {
			return nil, err
		}
		if err := rad.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", r.line, err)
		}
		rads = append(rads, rad)
	}
	return rads, nil
}

func parseRadiologist(r row) (model.Radiologist, error) {
	ints := map[string]int{}
	for _, field := range []string{"ID", "CME Credits", "CME Required", "Last 30 Days", "Year Total", "Weekend Calls YTD", "Night Calls YTD", "Max Auto Bid", "Max Weekend Calls"} {
		n, err := r.int(field)
		if err != nil {
			return model.Radiologist{}, err
		}
		ints[field] = n
	}

	rad := model.Radiologist{
		ID:           ints["ID"],
		Name:         r.str("Name"),
		Email:        r.str("Email"),
		Subspecialty: r.str("Subspecialty"),
		Locations:    r.list("Locations"),
		Credentials: model.Credentials{
			BoardCertified: r.bool("Board Certified"),
			CMECredits:     ints["CME Credits"],
			CMERequired:    ints["CME Required"],
			LicenseNumber:  r.str("License Number"),
		},
		CallHistory: model.CallHistory{
			Last30Days:      ints["Last 30 Days"],
			YearTotal:       ints["Year Total"],
			WeekendCallsYTD: ints["Weekend Calls YTD"],
			NightCallsYTD:   ints["Night Calls YTD"],
		},
		Preferences: model.Preferences{
			BiddingOptIn:    r.bool("Bidding Opt In"),
			MaxAutoBid:      ints["Max Auto Bid"],
			PreferredMode:   model.PreferredMode(r.str("Preferred Mode")),
			BlackoutDates:   r.list("Blackout Dates"),
			BlackoutRules:   r.lines("Blackout Rules"),
			MaxWeekendCalls: ints["Max Weekend Calls"],
		},
	}

	if expiry := r.str("Cert Expiry"); expiry != "" {
		d, err := model.ParseDate(expiry)
		if err != nil {
			return model.Radiologist{}, fmt.Errorf("row %d: %w", r.line, err)
		}
		rad.Credentials.CertExpiry = d
	}
	return rad, nil
}

// ParseLocations converts raw spreadsheet data into validated locations
func ParseLocations(raw [][]interface{}) ([]model.Location, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("no header row found")
	}
	index, err := headerIndex(raw[0], locationRequiredFields, locationOptionalFields)
	if err != nil {
		return nil, err
	}

	locations := make([]model.Location, 0, len(raw)-1)
	for i := 1; i < len(raw); i++ {
		r := row{index: index, cells: raw[i], line: i + 1}
		if r.str("Name") == "" {
			continue
		}

		var staffing [4]int
		for j, field := range []string{"Weekday Day", "Weekday Night", "Weekend Day", "Weekend Night"} {
			if staffing[j], err = r.int(field); err != nil {
				return nil, err
			}
		}

		loc := model.Location{
			Name:       r.str("Name"),
			Address:    r.str("Address"),
			Modalities: r.list("Modalities"),
			Staffing: model.Staffing{
				WeekdayDay:   staffing[0],
				WeekdayNight: staffing[1],
				WeekendDay:   staffing[2],
				WeekendNight: staffing[3],
			},
		}
		if err := loc.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", r.line, err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}
