package models

import "strings"

// Form labels of the intake form. Responses arrive keyed by these strings.
const (
	FieldFullName    = "Nome completo"
	FieldCPF         = "CPF"
	FieldBirthDate   = "Data de nascimento"
	FieldGender      = "Sexo"
	FieldRG          = "RG"
	FieldEmail       = "E-mail"
	FieldMobile      = "Celular principal"
	FieldAddress     = "Endereço completo (rua e número)"
	FieldDistrict    = "Bairro"
	FieldCity        = "Cidade"
	FieldState       = "UF (estado)"
	FieldZip         = "CEP"
	FieldBirthplace  = "Naturalidade"
	FieldCivilStatus = "Estado civil"
	FieldRace        = "Raça/Cor"
	FieldSubmittedAt = "Carimbo de data/hora"
)

// FormResponse maps form labels to free-text answers
type FormResponse map[string]string

// Get returns the trimmed answer for label
func (r FormResponse) Get(label string) string {
	return strings.TrimSpace(r[label])
}
