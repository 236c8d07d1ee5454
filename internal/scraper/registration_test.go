package scraper

import (
	"context"
	"strings"
	"testing"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/browser/browsertest"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formPrefix = "ctl00_ContentPlaceHolder1_GridView1_ctl17_FormView1_"

const homeFrameset = `<html><frameset cols="20%,80%">
	<frame name="I1" src="/Menu.aspx">
	<frame name="I2" src="/Cadastro/Paciente.aspx">
</frameset></html>`

func patientsFrame(rows string) string {
	return `<html><body>
		<h3>Pacientes e Aplicações</h3>
		<input id="ctl00_ContentPlaceHolder1_txtNome" type="text">
		<table id="ctl00_ContentPlaceHolder1_GridView1">
			<tr><th>Nome</th><th>CPF</th></tr>` + rows + `
		</table>
		<input type="image" id="` + formPrefix + `ImageButton1" title="Novo" accesskey="N" src="/img/page_white.png">
	</body></html>`
}

const newPatientForm = `<html><body><div id="divCaixaDialogoConteudo">
	<input id="` + formPrefix + `txtNome" class="form-control">
	<input id="` + formPrefix + `txtCPF" class="form-control">
	<input id="` + formPrefix + `TxtDataNascimento" class="form-control">
	<select id="` + formPrefix + `drpSexo_hdpesjur">
		<option value="">Selecione</option><option value="1">Masculino</option><option value="2">Feminino</option>
	</select>
	<input id="` + formPrefix + `TextBox9" class="form-control">
	<select id="` + formPrefix + `drpUF">
		<option value="">--</option><option value="21">SP</option><option value="20">RJ</option>
	</select>
	<input id="` + formPrefix + `txtCEP" class="form-control">
	<input type="image" id="` + formPrefix + `BtnGravar" title="Gravar" src="/img/accept.png">
</div></body></html>`

func validResponse() models.FormResponse {
	return models.FormResponse{
		models.FieldFullName:  "Ana Beatriz Lima",
		models.FieldCPF:       "529.982.247-25",
		models.FieldBirthDate: "15/03/1990",
		models.FieldGender:    "Feminino",
		models.FieldEmail:     "ana@example.com",
		models.FieldMobile:    "11987654321",
		models.FieldState:     "São Paulo",
		models.FieldZip:       "07400000",
	}
}

type stepLog struct {
	steps   []models.Step
	success []bool
}

func (l *stepLog) record(step models.Step, success bool, _, _ string) {
	l.steps = append(l.steps, step)
	l.success = append(l.success, success)
}

func newRegistrationFixture(t *testing.T, rows string) (*browsertest.FakePage, *Registrar) {
	t.Helper()
	page := browsertest.NewFakePage().
		SetPage(loginURL, loginPage).
		SetPage(homeURL, homeFrameset).
		SetFrame("I2", patientsFrame(rows))
	page.OnClick(isLoginButton, func(p *browsertest.FakePage, _ browser.Element) {
		p.Load(homeURL)
	})
	page.OnClick(func(el browser.Element) bool { return el.Title == "Novo" }, func(p *browsertest.FakePage, _ browser.Element) {
		p.ReplaceDocument(newPatientForm)
	})
	portal, _ := newTestPortal(t, page)
	auth := NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "s3nha"})
	return page, NewRegistrar(portal, auth)
}

func TestRegisterExistingCPFIsDuplicate(t *testing.T) {
	page, registrar := newRegistrationFixture(t, `<tr><td>Ana Beatriz Lima</td><td>529.982.247-25</td></tr>`)
	var log stepLog

	result := registrar.Register(context.Background(), validResponse(), log.record)

	assert.Equal(t, models.SubmissionDuplicate, result.Status)
	assert.Equal(t, models.StepCPFCheck, result.Step)
	assert.Contains(t, result.Message, "529.982.247-25")
	assert.Equal(t, []models.Step{models.StepValidation, models.StepCPFCheck}, log.steps)
	assert.False(t, page.HasEvent("click:input#"+formPrefix+"ImageButton1"))
	assert.False(t, page.HasEvent("scriptclick:input#"+formPrefix+"BtnGravar"))
}

func TestRegisterLoginFailureIsTaggedLogin(t *testing.T) {
	page := browsertest.NewFakePage().SetPage(loginURL, loginPage)
	page.OnClick(isLoginButton, func(p *browsertest.FakePage, _ browser.Element) {
		p.ReplaceDocument(`<html><body><span id="Login1_FailureText">Usuário ou senha inválidos</span></body></html>`)
	})
	portal, _ := newTestPortal(t, page)
	registrar := NewRegistrar(portal, NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "errada"}))
	var log stepLog

	result := registrar.Register(context.Background(), validResponse(), log.record)

	assert.Equal(t, models.SubmissionError, result.Status)
	assert.Equal(t, models.StepLogin, result.Step)
	assert.ErrorIs(t, result.Err, ErrInvalidCredentials)
	assert.Equal(t, []models.Step{models.StepValidation, models.StepLogin}, log.steps)
	assert.Equal(t, []bool{true, false}, log.success)
}

func TestRegisterNewPatient(t *testing.T) {
	page, registrar := newRegistrationFixture(t, `<tr><td>Outro Paciente</td><td>111.444.777-35</td></tr>`)
	page.OnClick(func(el browser.Element) bool { return el.Title == "Gravar" }, func(p *browsertest.FakePage, _ browser.Element) {
		p.ReplaceDocument(`<html><body>
			<span id="ctl00_ContentPlaceHolder1_lblMessage">Paciente cadastrado com sucesso</span>
			<span id="ctl00_ContentPlaceHolder1_lblId">4321</span>
		</body></html>`)
	})
	var log stepLog

	result := registrar.Register(context.Background(), validResponse(), log.record)

	require.Equal(t, models.SubmissionSuccess, result.Status, result.Message)
	assert.Equal(t, "4321", result.PatientID)
	assert.Equal(t, "Paciente cadastrado com sucesso", result.Message)
	assert.Equal(t, []models.Step{
		models.StepValidation, models.StepCPFCheck, models.StepLogin, models.StepNavigation,
		models.StepFormFill, models.StepFormSubmit, models.StepConfirmation,
	}, log.steps)

	assert.True(t, page.HasEvent("setvalue:"+formPrefix+"txtCPF=52998224725"))
	assert.True(t, page.HasEvent("setvalue:"+formPrefix+"drpSexo_hdpesjur=2"))
	assert.True(t, page.HasEvent("setvalue:"+formPrefix+"drpUF=21"))
	assert.True(t, page.HasEvent("setvalue:"+formPrefix+"txtCEP=07400-000"))
	assert.True(t, page.HasEvent("event:"+formPrefix+"txtNome:change"))
	assert.True(t, page.HasEvent("scriptclick:input#"+formPrefix+"BtnGravar"))
}

func TestRegisterPortalRejection(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		status models.SubmissionStatus
	}{
		{"error", `<div class="alert-danger">Data de nascimento inválida</div>`, models.SubmissionError},
		{"duplicate", `<div class="alert-danger">CPF já existe no cadastro</div>`, models.SubmissionDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, registrar := newRegistrationFixture(t, "")
			page.OnClick(func(el browser.Element) bool { return el.Title == "Gravar" }, func(p *browsertest.FakePage, _ browser.Element) {
				p.ReplaceDocument("<html><body>" + tt.html + "</body></html>")
			})

			result := registrar.Register(context.Background(), validResponse(), nil)

			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, models.StepConfirmation, result.Step)
		})
	}
}

func TestRegisterMissingRequiredFieldDoesNotSubmit(t *testing.T) {
	page, registrar := newRegistrationFixture(t, "")
	formWithoutCPF := strings.Replace(newPatientForm, `<input id="`+formPrefix+`txtCPF" class="form-control">`, "", 1)
	page.OnClick(func(el browser.Element) bool { return el.Title == "Novo" }, func(p *browsertest.FakePage, _ browser.Element) {
		p.ReplaceDocument(formWithoutCPF)
	})
	var log stepLog

	result := registrar.Register(context.Background(), validResponse(), log.record)

	assert.Equal(t, models.SubmissionError, result.Status)
	assert.Equal(t, models.StepFormFill, result.Step)
	assert.Equal(t, "Campo obrigatório não preenchido: CPF", result.Message)
	assert.False(t, page.HasEvent("scriptclick:input#"+formPrefix+"BtnGravar"))
	assert.NotContains(t, log.steps, models.StepFormSubmit)
}

func TestRegisterValidationFailsBeforeBrowser(t *testing.T) {
	page, registrar := newRegistrationFixture(t, "")
	resp := validResponse()
	resp[models.FieldCPF] = "111.111.111-11"
	delete(resp, models.FieldGender)

	result := registrar.Register(context.Background(), resp, nil)

	assert.Equal(t, models.SubmissionError, result.Status)
	assert.Equal(t, models.StepValidation, result.Step)
	assert.Contains(t, result.Message, "CPF inválido")
	assert.Contains(t, result.Message, "Sexo")
	assert.Empty(t, page.Navigations())
}

func TestValidateResponse(t *testing.T) {
	require.NoError(t, ValidateResponse(validResponse()))

	resp := validResponse()
	resp[models.FieldBirthDate] = "1990-03-15"
	err := ValidateResponse(resp)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "Data de nascimento em formato inválido")
}
