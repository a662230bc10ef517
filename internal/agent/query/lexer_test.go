package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(toks []token) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.text
	}
	return out
}

func TestLex(t *testing.T) {
	toks, err := lex("MATCH (p:Patient)<-[:HAS]-(v) WHERE p.name <> 'O\\'Neil' RETURN p")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"MATCH", "(", "p", ":", "Patient", ")", "<-", "[", ":", "HAS", "]", "-", "(", "v", ")",
		"WHERE", "p", ".", "name", "<>", "O'Neil", "RETURN", "p",
	}, texts(toks))
	assert.Equal(t, tokString, toks[20].kind)
}

func TestLex_DropsComments(t *testing.T) {
	toks, err := lex("MATCH (n) // DELETE n\n/* SET n.x = 1 */ RETURN n")
	require.NoError(t, err)
	assert.Equal(t, []string{"MATCH", "(", "n", ")", "RETURN", "n"}, texts(toks))
}

func TestLex_QuotedIdentifierAndRange(t *testing.T) {
	toks, err := lex("MATCH p=(a)-[*1..3]->(`weird ``name`) RETURN $limit, 1.5")
	require.NoError(t, err)

	var quoted, param, number []string
	for _, tk := range toks {
		switch {
		case tk.quoted:
			quoted = append(quoted, tk.text)
		case tk.kind == tokParam:
			param = append(param, tk.text)
		case tk.kind == tokNumber:
			number = append(number, tk.text)
		}
	}
	assert.Equal(t, []string{"weird `name"}, quoted)
	assert.Equal(t, []string{"$limit"}, param)
	assert.Equal(t, []string{"1", "3", "1.5"}, number)
	assert.Contains(t, texts(toks), "..")
}

func TestLex_Errors(t *testing.T) {
	for _, src := range []string{"RETURN 'open", "RETURN `open", "MATCH (n) /* open"} {
		_, err := lex(src)
		assert.Error(t, err, src)
	}
}
