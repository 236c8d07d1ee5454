package scraper

import "github.com/nexconsult/goc-sync/internal/models"

// FieldKind selects how a value is written into a control
type FieldKind int

const (
	TextField FieldKind = iota
	SelectField
)

func (k FieldKind) String() string {
	if k == SelectField {
		return "select"
	}
	return "text"
}

// FieldMapping binds a form label to the portal control that receives it
type FieldMapping struct {
	Label     string
	Selectors []string
	Kind      FieldKind
	Required  bool
	Transform Transformer
}

// Strategies returns the locator chain of the field
func (m FieldMapping) Strategies() []Strategy {
	return FieldStrategies(m.Selectors)
}

// Value applies the transformer to raw
func (m FieldMapping) Value(raw string) string {
	if m.Transform == nil {
		return raw
	}
	return m.Transform(raw)
}

func formInput(suffix string) []string {
	return []string{
		formFieldPrefix + suffix,
		`input[id*="FormView1_` + suffix + `"]`,
	}
}

// RegistrationFields is the new patient form, in fill order
var RegistrationFields = []FieldMapping{
	{Label: models.FieldFullName, Selectors: formInput("txtNome"), Required: true},
	{Label: models.FieldCPF, Selectors: formInput("txtCPF"), Required: true, Transform: NormalizeCPF},
	{Label: models.FieldBirthDate, Selectors: formInput("TxtDataNascimento"), Required: true},
	{
		Label: models.FieldGender,
		Selectors: []string{
			`select[id*="FormView1_drpSexo_hdpesjur"]`,
			`select[id*="drpSexo_hdpesjur"]`,
			`select[id*="FormView1_drpSexo"]`,
		},
		Kind:      SelectField,
		Required:  true,
		Transform: NormalizeGender,
	},
	{Label: models.FieldRG, Selectors: formInput("TextBox16")},
	{
		Label: models.FieldEmail,
		Selectors: []string{
			`input[id*="TextBox9"][class*="form-control"]`,
			`input[id$="_TextBox9"]`,
			formFieldPrefix + "TextBox9",
		},
	},
	{Label: models.FieldMobile, Selectors: formInput("TextBox6"), Transform: NormalizePhone},
	{Label: models.FieldAddress, Selectors: formInput("txtEndereco")},
	{
		Label: models.FieldDistrict,
		Selectors: []string{
			`input[id*="txtBairro"][class*="form-control"]`,
			`input[id$="_txtBairro"]`,
			formFieldPrefix + "txtBairro",
		},
	},
	{Label: models.FieldCity, Selectors: formInput("txtCidade")},
	{
		Label: models.FieldState,
		Selectors: []string{
			`select[id*="drpUF"]:not([id*="_hd"])`,
			formFieldPrefix + "drpUF",
			`select[id*="FormView1_drpUF"]`,
		},
		Kind:      SelectField,
		Transform: NormalizeState,
	},
	{Label: models.FieldZip, Selectors: formInput("txtCEP"), Transform: NormalizeZip},
	{
		Label: models.FieldBirthplace,
		Selectors: []string{
			`input[id*="FormView1_txtNaturalidade"]:not([id*="_hd"])`,
			formFieldPrefix + "txtNaturalidade",
			`input[id*="txtNaturalidade"]:not([id*="_hd"])`,
		},
	},
	{
		Label: models.FieldCivilStatus,
		Selectors: []string{
			`select[id*="drpEstadoCivil_hdpesjur"]`,
			`select[id*="drpEstadoCivil"]`,
		},
		Kind:      SelectField,
		Transform: NormalizeCivilStatus,
	},
	{
		Label: models.FieldRace,
		Selectors: []string{
			`select[id*="drpRaca_hdpesjur"]`,
			`select[id*="drpRaca"]`,
		},
		Kind:      SelectField,
		Transform: NormalizeRace,
	},
}
