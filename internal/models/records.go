package models

import (
	"fmt"
	"strings"
	"time"
)

// Appointment is one block parsed from the portal calendar
type Appointment struct {
	Date         string   `json:"date"` // DD-MM-YYYY, as keyed in the calendar script
	Time         string   `json:"time"`
	PatientName  string   `json:"patient_name"`
	VaccineInfo  string   `json:"vaccine_info"`
	Observations string   `json:"observations"`
	Phone        string   `json:"phone"`
	Lines        []string `json:"lines,omitempty"`
}

// Key identifies the appointment within a single extraction pass
func (a Appointment) Key() string {
	return a.Date + "|" + a.Time + "|" + a.PatientName
}

// Day parses the DD-MM-YYYY calendar date
func (a Appointment) Day() (time.Time, error) {
	d, err := time.Parse("02-01-2006", a.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid appointment date %q: %w", a.Date, err)
	}
	return d, nil
}

// StockItem is one row of the vaccine stock grid
type StockItem struct {
	Name           string  `json:"name"`
	Laboratory     string  `json:"laboratory"`
	PurchasePrice  float64 `json:"purchase_price"`
	SalePrice      float64 `json:"sale_price"`
	CurrentStock   int     `json:"current_stock"`
	AvailableStock int     `json:"available_stock"`
	MinStock       int     `json:"min_stock"`
}

// Key is name|lab|current_stock
func (s StockItem) Key() string {
	return fmt.Sprintf("%s|%s|%d", s.Name, s.Laboratory, s.CurrentStock)
}

// UserRecord is one row of the patient list
type UserRecord struct {
	Name         string `json:"name"`
	BirthDate    string `json:"birth_date"`
	Responsible1 string `json:"responsible_1"`
	Responsible2 string `json:"responsible_2"`
	RegisterDate string `json:"register_date"`
	Initials     string `json:"initials"`
}

// Key is name|register_date
func (u UserRecord) Key() string {
	return u.Name + "|" + u.RegisterDate
}

// CalendarStats summarizes an extraction by day and by vaccine
type CalendarStats struct {
	Total     int            `json:"total"`
	ByDate    map[string]int `json:"by_date"`
	ByVaccine map[string]int `json:"by_vaccine"`
}

// NewCalendarStats counts appointments per date and per vaccine line
func NewCalendarStats(appointments []Appointment) CalendarStats {
	stats := CalendarStats{
		Total:     len(appointments),
		ByDate:    make(map[string]int),
		ByVaccine: make(map[string]int),
	}
	for _, a := range appointments {
		stats.ByDate[a.Date]++
		stats.ByVaccine[strings.TrimSpace(a.VaccineInfo)]++
	}
	return stats
}
