package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/nexconsult/goc-sync/internal/utils"
	"github.com/sirupsen/logrus"
)

var requiredAnswers = []string{
	models.FieldFullName,
	models.FieldCPF,
	models.FieldBirthDate,
	models.FieldGender,
}

// ValidateResponse checks a form response before any browser work
func ValidateResponse(resp models.FormResponse) error {
	var fields []FieldError
	for _, label := range requiredAnswers {
		if resp.Get(label) == "" {
			fields = append(fields, FieldError{Field: label, Reason: "Campo obrigatório ausente"})
		}
	}
	if cpf := resp.Get(models.FieldCPF); cpf != "" && !utils.IsValidCPF(cpf) {
		fields = append(fields, FieldError{Field: models.FieldCPF, Reason: "CPF inválido"})
	}
	if date := resp.Get(models.FieldBirthDate); date != "" && !utils.IsValidBRDate(date) {
		fields = append(fields, FieldError{Field: models.FieldBirthDate, Reason: "Data de nascimento em formato inválido"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// StepFunc receives one entry per registration step
type StepFunc func(step models.Step, success bool, message, details string)

// RegistrationResult is the outcome of one registration attempt
type RegistrationResult struct {
	Status    models.SubmissionStatus
	Step      models.Step
	Message   string
	PatientID string
	// Err is the cause of a failed attempt
	Err error
}

// Registrar registers patients through the new entry form. It runs
// Validate, CheckDuplicate, Login, NavigateToForm, OpenNewEntryForm,
// FillFields, Submit and InterpretResult, stopping at the first failure.
type Registrar struct {
	portal *Portal
	auth   *Authenticator
	nav    *Navigator
	form   *Form
}

// NewRegistrar wires the registration flow onto one portal session
func NewRegistrar(portal *Portal, auth *Authenticator) *Registrar {
	return &Registrar{
		portal: portal,
		auth:   auth,
		nav:    NewNavigator(portal, auth),
		form:   NewForm(portal, RegistrationFields),
	}
}

// CheckDuplicate reports whether cpf already appears in the patient grid.
// A page without the grid is treated as "not registered".
func (r *Registrar) CheckDuplicate(ctx context.Context, cpf string) (bool, error) {
	p := r.portal
	digits := utils.CleanCPF(cpf)

	if err := r.auth.EnsureLogin(ctx); err != nil {
		return false, err
	}
	if err := r.nav.EnsureOnRegistrationPage(ctx); err != nil {
		return false, err
	}
	if err := p.waitPresent(ctx, browser.ID(SelectorGrid), p.Config.Browser.ImplicitWait); err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			p.Logger.Warn("Patient grid not found, assuming CPF is not registered")
			return false, nil
		}
		return false, err
	}

	html, err := p.Page.HTML(ctx)
	if err != nil {
		return false, err
	}
	if strings.Contains(html, digits) {
		return true, nil
	}

	rows, err := p.Page.FindAll(ctx, browser.CSS(SelectorGridAllRows))
	if err != nil {
		return false, err
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if strings.Contains(utils.Digits(row.Text), digits) {
			return true, nil
		}
	}
	return false, nil
}

// Register runs one registration attempt. It never returns raw browser
// errors: every failure is folded into the result with its step.
func (r *Registrar) Register(ctx context.Context, resp models.FormResponse, record StepFunc) RegistrationResult {
	if record == nil {
		record = func(models.Step, bool, string, string) {}
	}
	cpf := utils.CleanCPF(resp.Get(models.FieldCPF))
	logger := r.portal.Logger.WithField("cpf", utils.FormatCPF(cpf))

	fail := func(step models.Step, message string, err error) RegistrationResult {
		details := ""
		if err != nil {
			details = err.Error()
		}
		record(step, false, message, details)
		logger.WithFields(logrus.Fields{
			"step":  step,
			"url":   r.portal.location(ctx),
			"error": details,
		}).Error(message)
		return RegistrationResult{Status: models.SubmissionError, Step: step, Message: message, Err: err}
	}

	if err := ValidateResponse(resp); err != nil {
		return fail(models.StepValidation, err.Error(), err)
	}
	record(models.StepValidation, true, "Dados validados", "")

	exists, err := r.CheckDuplicate(ctx, cpf)
	if err != nil {
		if isLoginFailure(err) {
			return fail(models.StepLogin, "Falha ao fazer login na plataforma", err)
		}
		return fail(models.StepCPFCheck, "Falha ao verificar CPF na plataforma", err)
	}
	if exists {
		message := fmt.Sprintf("Paciente com CPF %s já existe na plataforma", utils.FormatCPF(cpf))
		record(models.StepCPFCheck, true, message, "")
		logger.Info("Patient already registered")
		return RegistrationResult{Status: models.SubmissionDuplicate, Step: models.StepCPFCheck, Message: message}
	}
	record(models.StepCPFCheck, true, "CPF não encontrado na plataforma", "")

	if err := r.auth.EnsureLogin(ctx); err != nil {
		return fail(models.StepLogin, "Falha ao fazer login na plataforma", err)
	}
	record(models.StepLogin, true, "Login realizado", "")

	if err := r.nav.EnsureOnRegistrationPage(ctx); err != nil {
		return fail(models.StepNavigation, "Falha ao acessar página de cadastro", err)
	}
	if err := r.form.OpenNewEntry(ctx); err != nil {
		return fail(models.StepNavigation, "Falha ao abrir formulário de novo paciente", err)
	}
	record(models.StepNavigation, true, "Formulário de cadastro aberto", "")

	filled, err := r.form.FillAll(ctx, resp)
	if err != nil {
		message := "Falha ao preencher formulário"
		var se *ScraperError
		if errors.As(err, &se) && se.Details != "" {
			message = se.Details
		}
		return fail(models.StepFormFill, message, err)
	}
	record(models.StepFormFill, true, fmt.Sprintf("%d campos preenchidos", len(filled)), strings.Join(filled, ", "))

	if err := r.form.Submit(ctx); err != nil {
		return fail(models.StepFormSubmit, "Falha ao enviar formulário", err)
	}
	record(models.StepFormSubmit, true, "Formulário enviado", "")

	result := r.form.InterpretResult(ctx)
	switch {
	case result.Success:
		record(models.StepConfirmation, true, result.Message, result.PatientID)
		logger.WithField("patient_id", result.PatientID).Info("Patient registered")
		return RegistrationResult{Status: models.SubmissionSuccess, Step: models.StepConfirmation, Message: result.Message, PatientID: result.PatientID}
	case result.Duplicate:
		record(models.StepConfirmation, true, result.Message, "")
		logger.Info("Portal reported patient as duplicate")
		return RegistrationResult{Status: models.SubmissionDuplicate, Step: models.StepConfirmation, Message: result.Message}
	default:
		return fail(models.StepConfirmation, result.Message, ErrSubmitRejected)
	}
}
