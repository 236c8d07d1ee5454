package scraper

import (
	"strings"

	"github.com/nexconsult/goc-sync/internal/utils"
)

// Transformer maps a free-text answer onto the value domain of a portal field
type Transformer func(string) string

// NormalizeCPF keeps only the digits
func NormalizeCPF(cpf string) string {
	return utils.CleanCPF(cpf)
}

// NormalizePhone masks 10 or 11 digit numbers; anything else is returned unchanged
func NormalizePhone(phone string) string {
	d := utils.Digits(phone)
	switch len(d) {
	case 11:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:]
	case 10:
		return "(" + d[:2] + ") " + d[2:6] + "-" + d[6:]
	}
	return phone
}

// NormalizeZip masks an 8 digit CEP
func NormalizeZip(zip string) string {
	d := utils.Digits(zip)
	if len(d) == 8 {
		return d[:5] + "-" + d[5:]
	}
	return zip
}

// NormalizeGender maps to the portal codes 1 (male) and 2 (female)
func NormalizeGender(gender string) string {
	g := strings.ToLower(strings.TrimSpace(gender))
	switch {
	case strings.Contains(g, "masc") || g == "m" || strings.Contains(g, "homem"):
		return "1"
	case strings.Contains(g, "fem") || g == "f" || strings.Contains(g, "mulher"):
		return "2"
	}
	return gender
}

var stateNames = map[string]string{
	"ACRE": "AC", "ALAGOAS": "AL", "AMAPA": "AP", "AMAPÁ": "AP", "AMAZONAS": "AM",
	"BAHIA": "BA", "CEARA": "CE", "CEARÁ": "CE", "DISTRITO FEDERAL": "DF",
	"ESPIRITO SANTO": "ES", "ESPÍRITO SANTO": "ES", "GOIAS": "GO", "GOIÁS": "GO",
	"MARANHAO": "MA", "MARANHÃO": "MA", "MATO GROSSO": "MT", "MATO GROSSO DO SUL": "MS",
	"MINAS GERAIS": "MG", "PARA": "PA", "PARÁ": "PA", "PARAIBA": "PB", "PARAÍBA": "PB",
	"PARANA": "PR", "PARANÁ": "PR", "PERNAMBUCO": "PE", "PIAUI": "PI", "PIAUÍ": "PI",
	"RIO DE JANEIRO": "RJ", "RIO GRANDE DO NORTE": "RN", "RIO GRANDE DO SUL": "RS",
	"RONDONIA": "RO", "RONDÔNIA": "RO", "RORAIMA": "RR", "SANTA CATARINA": "SC",
	"SAO PAULO": "SP", "SÃO PAULO": "SP", "SERGIPE": "SE", "TOCANTINS": "TO",
}

var stateCodes = map[string]string{
	"AC": "3", "AL": "15", "AP": "7", "AM": "4", "BA": "17",
	"CE": "11", "DF": "28", "ES": "19", "GO": "27", "MA": "9",
	"MT": "26", "MS": "25", "MG": "18", "PA": "6", "PB": "13",
	"PR": "22", "PE": "14", "PI": "10", "RJ": "20", "RN": "12",
	"RS": "24", "RO": "2", "RR": "5", "SC": "23", "SP": "21",
	"SE": "16", "TO": "8",
}

// NormalizeState maps a state name or acronym to the portal's numeric UF
// code. Unknown input yields "".
func NormalizeState(state string) string {
	s := strings.ToUpper(strings.TrimSpace(state))
	if acronym, ok := stateNames[s]; ok {
		s = acronym
	}
	return stateCodes[s]
}

var civilStatusCodes = map[string]string{
	"solteiro": "1", "solteira": "1",
	"casado": "2", "casada": "2",
	"separado": "3", "separada": "3",
	"divorciado": "4", "divorciada": "4",
	"viuvo": "5", "viúvo": "5", "viuva": "5", "viúva": "5",
	"uniao estavel": "5", "união estável": "5",
	"outros": "5", "outro": "5",
}

// NormalizeCivilStatus maps to codes 1..5, defaulting to 5 (others)
func NormalizeCivilStatus(status string) string {
	if code, ok := civilStatusCodes[strings.ToLower(strings.TrimSpace(status))]; ok {
		return code
	}
	return "5"
}

var raceCodes = map[string]string{
	"branco": "1", "branca": "1",
	"pardo": "2", "parda": "2",
	"negro": "3", "negra": "3", "preto": "3", "preta": "3",
	"amarelo": "4", "amarela": "4",
	"indigena": "5", "indígena": "5",
}

// NormalizeRace maps to codes 1..5; unknown input yields ""
func NormalizeRace(race string) string {
	return raceCodes[strings.ToLower(strings.TrimSpace(race))]
}

// genderSynonyms lists option texts and values the gender select may use per code
var genderSynonyms = map[string][]string{
	"1": {"M", "Masculino", "Masc", "MASCULINO", "MASC"},
	"2": {"F", "Feminino", "Fem", "FEMININO", "FEM"},
}
