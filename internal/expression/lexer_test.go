package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenize(t *testing.T, input string) []Token {
	t.Helper()
	tokens, err := NewLexer(input).Tokenize()
	require.NoError(t, err)
	return tokens
}

func TestLexer_SimpleCondition(t *testing.T) {
	tokens := tokenize(t, `channel_name contains "News"`)

	require.Len(t, tokens, 4) // ident, ident, string, EOF
	assert.Equal(t, TokenIdent, tokens[0].Type)
	assert.Equal(t, "channel_name", tokens[0].Value)
	assert.Equal(t, TokenIdent, tokens[1].Type)
	assert.Equal(t, "contains", tokens[1].Value)
	assert.Equal(t, TokenString, tokens[2].Type)
	assert.Equal(t, "News", tokens[2].Value)
	assert.Equal(t, TokenEOF, tokens[3].Type)
}

func TestLexer_Keywords(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"AND", TokenAnd},
		{"and", TokenAnd},
		{"OR", TokenOr},
		{"NOT", TokenNot},
		{"SET", TokenAction},
		{"set_if_empty", TokenAction},
		{"REMOVE", TokenAction},
		{"DELETE", TokenAction},
		{"APPEND", TokenAction},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens := tokenize(t, tt.input)
			assert.Equal(t, tt.expected, tokens[0].Type)
		})
	}
}

func TestLexer_Operators(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"=", TokenEquals},
		{"==", TokenEquals},
		{"!=", TokenNotEquals},
		{"?=", TokenSetIfEmpty},
		{"+=", TokenAppend},
		{"<", TokenLess},
		{"<=", TokenLessEqual},
		{">", TokenGreater},
		{">=", TokenGreaterEqual},
		{"&&", TokenAnd},
		{"||", TokenOr},
		{"!", TokenNot},
		{"(", TokenLParen},
		{")", TokenRParen},
		{",", TokenComma},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens := tokenize(t, tt.input)
			assert.Equal(t, tt.expected, tokens[0].Type)
		})
	}
}

func TestLexer_Strings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"double quoted", `"hello"`, "hello"},
		{"single quoted", `'hello'`, "hello"},
		{"escaped quote", `"say \"hi\""`, `say "hi"`},
		{"escaped newline", `"a\nb"`, "a\nb"},
		{"empty", `""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := tokenize(t, tt.input)
			require.Equal(t, TokenString, tokens[0].Type)
			assert.Equal(t, tt.expected, tokens[0].Value)
		})
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []string{"42", "3.14", "-7", "0"}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			tokens := tokenize(t, input)
			require.Equal(t, TokenNumber, tokens[0].Type)
			assert.Equal(t, input, tokens[0].Value)
		})
	}
}

func TestLexer_UnterminatedString(t *testing.T) {
	_, err := NewLexer(`"unterminated`).Tokenize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated")
}

func TestLexer_UnexpectedCharacter(t *testing.T) {
	_, err := NewLexer(`channel_name # "x"`).Tokenize()
	assert.Error(t, err)
}
