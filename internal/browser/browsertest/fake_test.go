package browsertest

import (
	"context"
	"testing"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const framesetPage = `<html><frameset>
	<frame name="I1" src="/Menu.aspx">
	<frame name="I2" src="/Cadastro/Paciente.aspx">
</frameset></html>`

func TestFakePageFrames(t *testing.T) {
	ctx := context.Background()
	p := NewFakePage().
		SetPage("http://portal.test/Login/Inicio.aspx", framesetPage).
		SetFrame("I2", `<html><body><input id="ctl00_ContentPlaceHolder1_txtNome"></body></html>`)
	require.NoError(t, p.Navigate(ctx, "http://portal.test/Login/Inicio.aspx"))

	frames, err := p.Frames(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "I2", frames[1].Name)

	require.NoError(t, p.EnterFrame(ctx, frames[1]))
	els, err := p.FindAll(ctx, browser.ID("ctl00_ContentPlaceHolder1_txtNome"))
	require.NoError(t, err)
	assert.Len(t, els, 1)

	require.NoError(t, p.Navigate(ctx, "http://portal.test/Login/Inicio.aspx"))
	assert.Equal(t, 0, p.FrameDepth())
}

func TestFakePageSelectSemantics(t *testing.T) {
	ctx := context.Background()
	p := NewFakePage().SetPage("http://portal.test/", `<html><body>
		<select id="sexo"><option value="">--</option><option value="1">Masculino</option><option value="2">Feminino</option></select>
	</body></html>`)
	require.NoError(t, p.Navigate(ctx, "http://portal.test/"))

	els, err := p.FindAll(ctx, browser.ID("sexo"))
	require.NoError(t, err)
	sel := els[0]

	v, err := p.Value(ctx, sel)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, p.SelectByText(ctx, sel, "Feminino"))
	v, _ = p.Value(ctx, sel)
	assert.Equal(t, "2", v)

	assert.ErrorIs(t, p.SelectByValue(ctx, sel, "9"), browser.ErrNoSuchOption)
	v, _ = p.Value(ctx, sel)
	assert.Equal(t, "2", v, "failed select keeps the previous option")

	require.NoError(t, p.SetValue(ctx, sel, "Fem", "change"))
	v, _ = p.Value(ctx, sel)
	assert.Equal(t, "", v, "script assignment of an unknown value clears the select")
}

func TestFakePageReadOnlyAndClicks(t *testing.T) {
	ctx := context.Background()
	p := NewFakePage().
		SetPage("http://portal.test/", `<html><body><input id="nome"><input id="go" type="submit"></body></html>`).
		SetPage("http://portal.test/done", `<html><body>ok</body></html>`).
		ReadOnly("nome").
		RejectNativeClick("go")
	p.OnClick(func(el browser.Element) bool { return el.ID == "go" }, func(p *FakePage, _ browser.Element) {
		p.Load("http://portal.test/done")
	})
	require.NoError(t, p.Navigate(ctx, "http://portal.test/"))

	nome, err := p.FindAll(ctx, browser.ID("nome"))
	require.NoError(t, err)
	require.NoError(t, p.SetValue(ctx, nome[0], "Ana"))
	v, _ := p.Value(ctx, nome[0])
	assert.Empty(t, v)

	goBtn, _ := p.FindAll(ctx, browser.ID("go"))
	assert.Error(t, p.Click(ctx, goBtn[0]))
	require.NoError(t, p.ScriptClick(ctx, goBtn[0]))

	url, _ := p.Location(ctx)
	assert.Equal(t, "http://portal.test/done", url)
	assert.True(t, p.HasEvent("scriptclick:input#go"))
}

func TestFakePageEvaluate(t *testing.T) {
	ctx := context.Background()
	p := NewFakePage().OnScript("cellContents", func(*FakePage, string) (interface{}, error) {
		return map[string]string{"25-08-2025": "<div></div>"}, nil
	})

	var out map[string]string
	require.NoError(t, p.Evaluate(ctx, "JSON.parse(JSON.stringify(cellContents))", &out))
	assert.Contains(t, out, "25-08-2025")

	assert.Error(t, p.Evaluate(ctx, "typeof __doPostBack", nil))
}
