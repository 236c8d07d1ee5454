package scraper

import (
	"context"
	"testing"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/browser/browsertest"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFormFixture(t *testing.T, html string, fields []FieldMapping) (*browsertest.FakePage, *Form) {
	t.Helper()
	page := browsertest.NewFakePage().SetPage(homeURL, html)
	require.NoError(t, page.Navigate(context.Background(), homeURL))
	portal, _ := newTestPortal(t, page)
	return page, NewForm(portal, fields)
}

func TestFillAllRequiredFieldMissingAborts(t *testing.T) {
	fields := []FieldMapping{
		{Label: models.FieldFullName, Selectors: formInput("txtNome"), Required: true},
		{Label: models.FieldCPF, Selectors: formInput("txtCPF"), Required: true, Transform: NormalizeCPF},
		{Label: models.FieldCity, Selectors: formInput("txtCidade")},
	}
	page, form := newFormFixture(t, `<html><body>
		<input id="`+formPrefix+`txtNome"><input id="`+formPrefix+`txtCidade">
	</body></html>`, fields)
	resp := validResponse()
	resp[models.FieldCity] = "Arujá"

	filled, err := form.FillAll(context.Background(), resp)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.Equal(t, []string{models.FieldFullName}, filled)
	assert.False(t, page.HasEvent("setvalue:"+formPrefix+"txtCidade"), "fields after a failed required field are not touched")
}

func TestFillAllSkipsOptionalFailures(t *testing.T) {
	fields := []FieldMapping{
		{Label: models.FieldFullName, Selectors: formInput("txtNome"), Required: true},
		{Label: models.FieldMobile, Selectors: formInput("TextBox6"), Transform: NormalizePhone},
		{Label: models.FieldState, Selectors: []string{`select[id*="drpUF"]`}, Kind: SelectField, Transform: NormalizeState},
	}
	resp := validResponse()
	resp[models.FieldState] = "Atlântida"
	_, form := newFormFixture(t, `<html><body>
		<input id="`+formPrefix+`txtNome">
		<select id="`+formPrefix+`drpUF"><option value="21">SP</option></select>
	</body></html>`, fields)

	filled, err := form.FillAll(context.Background(), resp)

	require.NoError(t, err)
	assert.Equal(t, []string{models.FieldFullName}, filled)
}

func TestFillTextRetriesReadOnlyField(t *testing.T) {
	m := FieldMapping{Label: models.FieldFullName, Selectors: formInput("txtNome"), Required: true}
	page, form := newFormFixture(t, `<html><body><input id="`+formPrefix+`txtNome"></body></html>`, nil)
	page.ReadOnly(formPrefix + "txtNome")

	err := form.Fill(context.Background(), m, "Ana")

	assert.ErrorIs(t, err, ErrFieldNotFilled)
	assert.Len(t, filterEvents(page.Events(), "setvalue:"+formPrefix+"txtNome=Ana"), 2)
}

func TestFillSelectStrategies(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		options string
		value   string
		want    string
	}{
		{"script assignment", models.FieldGender, `<option value="1">Masculino</option><option value="2">Feminino</option>`, "2", "2"},
		{"visible text", models.FieldCivilStatus, `<option value="c">Casado</option><option value="s">Solteiro</option>`, "Solteiro", "s"},
		{"partial text", models.FieldRace, `<option value="">--</option><option value="07">Parda (IBGE)</option>`, "parda", "07"},
		{"gender synonym", models.FieldGender, `<option value="">--</option><option value="M">Masc.</option><option value="F">Fem.</option>`, "2", "F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := FieldMapping{Label: tt.label, Selectors: []string{"select#campo"}, Kind: SelectField}
			page, form := newFormFixture(t, `<html><body><select id="campo">`+tt.options+`</select></body></html>`, nil)

			require.NoError(t, form.Fill(context.Background(), m, tt.value))

			els, err := page.FindAll(context.Background(), browser.ID("campo"))
			require.NoError(t, err)
			got, err := page.Value(context.Background(), els[0])
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFillSelectNoOption(t *testing.T) {
	m := FieldMapping{Label: models.FieldRace, Selectors: []string{"select#campo"}, Kind: SelectField}
	_, form := newFormFixture(t, `<html><body><select id="campo"><option value="1">Branca</option></select></body></html>`, nil)

	err := form.Fill(context.Background(), m, "9")

	assert.ErrorIs(t, err, browser.ErrNoSuchOption)
}

func TestPartialOption(t *testing.T) {
	options := []browser.Option{
		{Value: "", Text: "Selecione"},
		{Value: "21", Text: "São Paulo"},
		{Value: "RJ", Text: "Rio"},
	}
	opt, ok := partialOption(options, "são paulo - capital")
	require.True(t, ok)
	assert.Equal(t, "21", opt.Value)

	opt, ok = partialOption(options, "rj")
	require.True(t, ok)
	assert.Equal(t, "RJ", opt.Value)

	_, ok = partialOption(options, "")
	assert.False(t, ok)
}

func TestOpenNewEntryFormDoesNotOpen(t *testing.T) {
	page, form := newFormFixture(t, patientsFrame(""), RegistrationFields)
	page.RejectNativeClick(formPrefix + "ImageButton1")

	err := form.OpenNewEntry(context.Background())

	assert.ErrorIs(t, err, ErrFormNotOpened)
	assert.True(t, page.HasEvent("scriptclick:input#"+formPrefix+"ImageButton1"))
}

func TestInterpretResult(t *testing.T) {
	tests := []struct {
		name string
		url  string
		html string
		want SubmitResult
	}{
		{
			name: "implicit success",
			url:  homeURL,
			html: `<p>Cadastro</p>`,
			want: SubmitResult{Success: true, Message: DefaultSuccessMessage},
		},
		{
			name: "success with id in url",
			url:  baseURL + "/Cadastro/Paciente.aspx?ID=987",
			html: `<div class="alert-success">Registro salvo</div>`,
			want: SubmitResult{Success: true, Message: "Registro salvo", PatientID: "987"},
		},
		{
			name: "hidden error ignored",
			url:  homeURL,
			html: `<span class="text-danger" style="display:none">Erro</span>`,
			want: SubmitResult{Success: true, Message: DefaultSuccessMessage},
		},
		{
			name: "duplicate",
			url:  homeURL,
			html: `<span class="text-danger">Registro duplicado</span>`,
			want: SubmitResult{Message: "Registro duplicado", Duplicate: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.NewFakePage().SetPage(tt.url, "<html><body>"+tt.html+"</body></html>")
			require.NoError(t, page.Navigate(context.Background(), tt.url))
			portal, _ := newTestPortal(t, page)

			assert.Equal(t, tt.want, NewForm(portal, nil).InterpretResult(context.Background()))
		})
	}
}

func filterEvents(events []string, prefix string) []string {
	var out []string
	for _, e := range events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			out = append(out, e)
		}
	}
	return out
}
