package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nexconsult/goc-sync/internal/models"
)

// Memory is a process-local Store used when no database is configured and
// in tests
type Memory struct {
	mu  sync.Mutex
	now func() time.Time
	seq int64

	patients     []models.Patient
	vaccines     []models.Vaccine
	appointments []models.ScheduledAppointment
	listings     []models.PatientListing
	submissions  map[string]models.Submission
	logs         []models.RegistrationLog
	runs         map[string]models.SyncRun
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		now:         time.Now,
		submissions: make(map[string]models.Submission),
		runs:        make(map[string]models.SyncRun),
	}
}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

// UpsertPatient implements Store
func (m *Memory) UpsertPatient(_ context.Context, name, phone string) (models.Patient, models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	for i := range m.patients {
		p := &m.patients[i]
		if p.Name != name {
			continue
		}
		if KnownPhone(phone) {
			p.Phone = phone
			p.UpdatedAt = now
		}
		return *p, models.Updated, nil
	}

	if !KnownPhone(phone) {
		phone = "Não informado"
	}
	p := models.Patient{ID: m.nextID(), Name: name, Phone: phone, Synced: true, CreatedAt: now, UpdatedAt: now}
	m.patients = append(m.patients, p)
	return p, models.Created, nil
}

// ResolveVaccine implements Store
func (m *Memory) ResolveVaccine(_ context.Context, info string) (models.Vaccine, models.UpsertResult, error) {
	name := VaccineName(info)
	if name == "" {
		return models.Vaccine{}, "", ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(name)
	for _, v := range m.vaccines {
		if strings.Contains(strings.ToLower(v.Name), needle) {
			return v, models.Updated, nil
		}
	}
	now := m.now()
	v := models.Vaccine{ID: m.nextID(), Name: name, MinStock: 10, CreatedAt: now, UpdatedAt: now}
	m.vaccines = append(m.vaccines, v)
	return v, models.Created, nil
}

// UpsertAppointment implements Store
func (m *Memory) UpsertAppointment(_ context.Context, a models.ScheduledAppointment) (models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	for i := range m.appointments {
		e := &m.appointments[i]
		if e.PatientID == a.PatientID && e.Date.Equal(a.Date) && e.Time == a.Time {
			e.VaccineID = a.VaccineID
			e.Observations = a.Observations
			e.Status = models.AppointmentScheduled
			e.UpdatedAt = now
			return models.Updated, nil
		}
	}
	a.ID = m.nextID()
	a.Status = models.AppointmentScheduled
	a.CreatedAt, a.UpdatedAt = now, now
	m.appointments = append(m.appointments, a)
	return models.Created, nil
}

// UpsertStock implements Store
func (m *Memory) UpsertStock(_ context.Context, item models.StockItem) (models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	idx := -1
	for i, v := range m.vaccines {
		if v.Name == item.Name {
			idx = i
			break
		}
	}
	if idx < 0 {
		prefix := strings.ToLower(item.Name)
		for i, v := range m.vaccines {
			if isPlaceholder(v) && strings.HasPrefix(strings.ToLower(v.Name), prefix) {
				idx = i
				break
			}
		}
	}

	result := models.Updated
	if idx < 0 {
		m.vaccines = append(m.vaccines, models.Vaccine{ID: m.nextID(), Name: item.Name, CreatedAt: now})
		idx = len(m.vaccines) - 1
		result = models.Created
	}
	v := &m.vaccines[idx]
	applyStock(v, item)
	v.UpdatedAt = now
	return result, nil
}

// isPlaceholder reports vaccines created from calendar text that no stock
// row has claimed yet
func isPlaceholder(v models.Vaccine) bool {
	return v.Laboratory == "" && v.CurrentStock == 0 && v.AvailableStock == 0 &&
		v.PurchasePrice == 0 && v.SalePrice == 0
}

func applyStock(v *models.Vaccine, item models.StockItem) {
	if item.Laboratory != "" {
		v.Laboratory = item.Laboratory
	}
	v.CurrentStock = item.CurrentStock
	v.AvailableStock = item.AvailableStock
	v.MinStock = item.MinStock
	if item.PurchasePrice > 0 {
		v.PurchasePrice = item.PurchasePrice
	}
	if item.SalePrice > 0 {
		v.SalePrice = item.SalePrice
	}
}

// UpsertListing implements Store
func (m *Memory) UpsertListing(_ context.Context, u models.UserRecord) (models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	for i := range m.listings {
		l := &m.listings[i]
		if l.Name == u.Name && l.RegisterDate == u.RegisterDate {
			l.BirthDate, l.Responsible1, l.Responsible2 = u.BirthDate, u.Responsible1, u.Responsible2
			l.UpdatedAt = now
			return models.Updated, nil
		}
	}
	m.listings = append(m.listings, models.PatientListing{
		ID:           m.nextID(),
		Name:         u.Name,
		BirthDate:    u.BirthDate,
		Responsible1: u.Responsible1,
		Responsible2: u.Responsible2,
		RegisterDate: u.RegisterDate,
		UpdatedAt:    now,
	})
	return models.Created, nil
}

// GetSubmission implements Store
func (m *Memory) GetSubmission(_ context.Context, cpf string) (models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[cpf]
	if !ok {
		return models.Submission{}, ErrNotFound
	}
	return s, nil
}

// SaveSubmission implements Store
func (m *Memory) SaveSubmission(_ context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	if existing, ok := m.submissions[s.CPF]; ok {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	} else {
		s.ID = m.nextID()
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.submissions[s.CPF] = *s
	return nil
}

// AppendLog implements Store
func (m *Memory) AppendLog(_ context.Context, l models.RegistrationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.nextID()
	if l.Timestamp.IsZero() {
		l.Timestamp = m.now()
	}
	m.logs = append(m.logs, l)
	return nil
}

// Logs implements Store
func (m *Memory) Logs(_ context.Context, submissionID int64) ([]models.RegistrationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RegistrationLog
	for _, l := range m.logs {
		if l.SubmissionID == submissionID {
			out = append(out, l)
		}
	}
	return out, nil
}

// CleanupOldLogs implements Store
func (m *Memory) CleanupOldLogs(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.logs[:0]
	var removed int64
	for _, l := range m.logs {
		if l.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return removed, nil
}

// SaveRun implements Store
func (m *Memory) SaveRun(_ context.Context, r *models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = *r
	return nil
}

// RecentRuns implements Store
func (m *Memory) RecentRuns(_ context.Context, limit int) ([]models.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SyncRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Patients returns a copy of the stored patients
func (m *Memory) Patients() []models.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Patient(nil), m.patients...)
}

// Vaccines returns a copy of the stored vaccines
func (m *Memory) Vaccines() []models.Vaccine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Vaccine(nil), m.vaccines...)
}

// Appointments returns a copy of the stored appointments
func (m *Memory) Appointments() []models.ScheduledAppointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ScheduledAppointment(nil), m.appointments...)
}

// Listings returns a copy of the stored patient listings
func (m *Memory) Listings() []models.PatientListing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PatientListing(nil), m.listings...)
}

// Ping implements Store
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Store
func (m *Memory) Close() {}
