package scraper

// Selectors for the GoC WebForms portal. Ids emitted by ASP.NET are long and
// positional, so every exact id is paired with a contains/suffix fallback.
const (
	// Login page
	SelectorUserNameByName = "Login1$UserName"
	SelectorPasswordByName = "Login1$Password"
	SelectorSubmitByName   = "Login1$LoginButton"
	SelectorUserNameByID   = "Login1_UserName"
	SelectorPasswordByID   = "Login1_Password"
	SelectorSubmitByID     = "Login1_LoginButton"
	SelectorUserNameCSS    = "input[name*='UserName']"
	SelectorPasswordCSS    = "input[name*='Password']"
	SelectorSubmitCSS      = "input[type='submit'], button[type='submit']"

	// Home frameset
	FrameContentName   = "I2"
	FrameContentID     = "ifrConteudo"
	ContentFieldMarker = "ctl00_ContentPlaceHolder1_txtNome"
	ContentMinInputs   = 3

	// Grid pages share the same GridView id
	SelectorGrid           = "ctl00_ContentPlaceHolder1_GridView1"
	SelectorGridAllRows    = "#ctl00_ContentPlaceHolder1_GridView1 tr"
	SelectorNewEntryDialog = "divCaixaDialogoConteudo"
	SelectorNameField      = "txtNome"
	SelectorFormNameField  = "FormView1_txtNome"

	// Post-submit
	SelectorResultMessage = "#ctl00_ContentPlaceHolder1_lblMessage"
	SelectorResultID      = "#ctl00_ContentPlaceHolder1_lblId"

	// Calendar page
	SelectorDatePicker = "DatePicker"

	// Grid pages
	SelectorSortByDate  = "ctl00_ContentPlaceHolder1_GridView1_ctl01_lnkDataCadastro"
	SelectorPagerTarget = "ctl00$ContentPlaceHolder1$GridView1"

	// formFieldPrefix is the id prefix of controls inside the new entry FormView
	formFieldPrefix = "#ctl00_ContentPlaceHolder1_GridView1_ctl17_FormView1_"
)

// loginErrorSelectors hold the visible failure text after a rejected login
var loginErrorSelectors = []string{
	".error",
	".alert-danger",
	".alert-error",
	"[style*='color:red']",
	"#Login1_FailureText",
}

// contentFrameSrcMarkers identify the content frame by its src
var contentFrameSrcMarkers = []string{"Paciente", "Cadastro"}

var successIndicators = []string{
	".alert-success",
	".success",
	"[class*='success']",
	SelectorResultMessage,
}

var successWords = []string{"sucesso", "salvo", "cadastrado"}

var errorIndicators = []string{
	".alert-danger",
	".error",
	"[class*='error']",
	".text-danger",
}

var duplicateWords = []string{"duplicado", "já existe"}

var resultIDSelectors = []string{
	SelectorResultID,
	".patient-id",
	"[id*='paciente']",
}
