package directory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// File is the YAML directory document
type File struct {
	Locations    []LocationRecord    `yaml:"locations"`
	Radiologists []RadiologistRecord `yaml:"radiologists"`
}

type LocationRecord struct {
	Name       string         `yaml:"name"`
	Address    string         `yaml:"address"`
	Modalities []string       `yaml:"modalities"`
	Staffing   model.Staffing `yaml:"staffing"`
}

type RadiologistRecord struct {
	ID           int      `yaml:"id"`
	Name         string   `yaml:"name"`
	Email        string   `yaml:"email"`
	Subspecialty string   `yaml:"subspecialty"`
	Locations    []string `yaml:"locations"`
	Credentials  struct {
		BoardCertified bool   `yaml:"boardCertified"`
		CertExpiry     string `yaml:"certExpiry"`
		CMECredits     int    `yaml:"cmeCredits"`
		CMERequired    int    `yaml:"cmeRequired"`
		LicenseNumber  string `yaml:"licenseNumber"`
	} `yaml:"credentials"`
	CallHistory struct {
		Last30Days      int `yaml:"last30Days"`
		YearTotal       int `yaml:"yearTotal"`
		WeekendCallsYTD int `yaml:"weekendCallsYTD"`
		NightCallsYTD   int `yaml:"nightCallsYTD"`
	} `yaml:"callHistory"`
	Preferences struct {
		BiddingOptIn    bool     `yaml:"biddingOptIn"`
		MaxAutoBid      int      `yaml:"maxAutoBid"`
		PreferredMode   string   `yaml:"preferredMode"`
		BlackoutDates   []string `yaml:"blackoutDates"`
		BlackoutRules   []string `yaml:"blackoutRules"`
		MaxWeekendCalls int      `yaml:"maxWeekendCalls"`
	} `yaml:"preferences"`
}

func (r RadiologistRecord) toModel() (model.Radiologist, error) {
	rad := model.Radiologist{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Subspecialty: r.Subspecialty,
		Locations:    r.Locations,
		Credentials: model.Credentials{
			BoardCertified: r.Credentials.BoardCertified,
			CMECredits:     r.Credentials.CMECredits,
			CMERequired:    r.Credentials.CMERequired,
			LicenseNumber:  r.Credentials.LicenseNumber,
		},
		CallHistory: model.CallHistory{
			Last30Days:      r.CallHistory.Last30Days,
			YearTotal:       r.CallHistory.YearTotal,
			WeekendCallsYTD: r.CallHistory.WeekendCallsYTD,
			NightCallsYTD:   r.CallHistory.NightCallsYTD,
		},
		Preferences: model.Preferences{
			BiddingOptIn:    r.Preferences.BiddingOptIn,
			MaxAutoBid:      r.Preferences.MaxAutoBid,
			PreferredMode:   model.PreferredMode(r.Preferences.PreferredMode),
			BlackoutDates:   r.Preferences.BlackoutDates,
			BlackoutRules:   r.Preferences.BlackoutRules,
			MaxWeekendCalls: r.Preferences.MaxWeekendCalls,
		},
	}
	if r.Credentials.CertExpiry != "" {
		expiry, err := model.ParseDate(r.Credentials.CertExpiry)
		if err != nil {
			return model.Radiologist{}, fmt.Errorf("radiologist %d cert expiry: %w", r.ID, err)
		}
		rad.Credentials.CertExpiry = expiry
	}
	return rad, nil
}

// Parse decodes a YAML directory document and builds the directory from it
func Parse(data []byte) (*Directory, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse directory file: %w", err)
	}

	locations := make([]model.Location, 0, len(file.Locations))
	for _, rec := range file.Locations {
		locations = append(locations, model.Location{
			Name:       rec.Name,
			Address:    rec.Address,
			Modalities: rec.Modalities,
			Staffing:   rec.Staffing,
		})
	}

	rads := make([]model.Radiologist, 0, len(file.Radiologists))
	for _, rec := range file.Radiologists {
		rad, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		rads = append(rads, rad)
	}

	return New(rads, locations)
}

// LoadFile reads the directory from a YAML file
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	return Parse(data)
}
