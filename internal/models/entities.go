package models

import "time"

// AppointmentStatus values persisted for appointments
const (
	AppointmentScheduled = "scheduled"
	AppointmentDone      = "done"
	AppointmentCancelled = "cancelled"
)

// Patient is the persisted patient entity, matched by exact name
type Patient struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	ViaChatbot bool      `json:"via_chatbot"`
	Synced     bool      `json:"synced"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Vaccine is the persisted stock entity
type Vaccine struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Laboratory     string    `json:"laboratory"`
	PurchasePrice  float64   `json:"purchase_price"`
	SalePrice      float64   `json:"sale_price"`
	CurrentStock   int       `json:"current_stock"`
	AvailableStock int       `json:"available_stock"`
	MinStock       int       `json:"min_stock"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ScheduledAppointment is keyed by (patient, date, time)
type ScheduledAppointment struct {
	ID           int64     `json:"id"`
	PatientID    int64     `json:"patient_id"`
	VaccineID    *int64    `json:"vaccine_id,omitempty"`
	Date         time.Time `json:"date"`
	Time         string    `json:"time"`
	Status       string    `json:"status"`
	Observations string    `json:"observations"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PatientListing is a persisted row of the portal patient list, keyed by (name, register date)
type PatientListing struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	BirthDate    string    `json:"birth_date"`
	Responsible1 string    `json:"responsible_1"`
	Responsible2 string    `json:"responsible_2"`
	RegisterDate string    `json:"register_date"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UpsertResult tells whether an upsert created or updated the entity
type UpsertResult string

const (
	Created UpsertResult = "created"
	Updated UpsertResult = "updated"
)
