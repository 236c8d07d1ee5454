package models

import "time"

// SubmissionStatus tracks a form response through registration
type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionProcessing SubmissionStatus = "processing"
	SubmissionSuccess    SubmissionStatus = "success"
	SubmissionDuplicate  SubmissionStatus = "duplicate"
	SubmissionError      SubmissionStatus = "error"
)

// Terminal reports whether the submission must not be attempted again
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionSuccess || s == SubmissionDuplicate
}

// Submission is the processed-submission record, keyed by normalized CPF
type Submission struct {
	ID                  int64             `json:"id"`
	CPF                 string            `json:"cpf"`
	Email               string            `json:"email"`
	FullName            string            `json:"full_name"`
	Status              SubmissionStatus  `json:"status"`
	PatientIDInPlatform string            `json:"patient_id_in_platform,omitempty"`
	ErrorMessage        string            `json:"error_message,omitempty"`
	Attempts            int               `json:"attempts"`
	LastAttemptAt       *time.Time        `json:"last_attempt_at,omitempty"`
	RawFormData         map[string]string `json:"raw_form_data,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Step is the closed set of registration log tags
type Step string

const (
	StepValidation   Step = "validation"
	StepCPFCheck     Step = "cpf_check"
	StepLogin        Step = "login"
	StepNavigation   Step = "navigation"
	StepFormFill     Step = "form_fill"
	StepFormSubmit   Step = "form_submit"
	StepConfirmation Step = "confirmation"
)

// RegistrationLog is one per-attempt, per-step entry
type RegistrationLog struct {
	ID            int64     `json:"id"`
	SubmissionID  int64     `json:"submission_id"`
	AttemptNumber int       `json:"attempt_number"`
	Step          Step      `json:"step"`
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	ErrorDetails  string    `json:"error_details,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
