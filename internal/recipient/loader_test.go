package recipient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/model"
)

func TestLoad_FirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	input := "email,full name\na@x.com,A\nb@x.com,B\na@x.com,A2\n"

	got, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []model.Recipient{
		{Email: "a@x.com", FullName: "A"},
		{Email: "b@x.com", FullName: "B"},
	}, got)
}

func TestLoad_NanNamesAreEmpty(t *testing.T) {
	t.Parallel()

	input := "email,full name\na@x.com,nan\nb@x.com, NaN \nc@x.com,Nancy\nd@x.com,\n"

	got, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []model.Recipient{
		{Email: "a@x.com"},
		{Email: "b@x.com"},
		{Email: "c@x.com", FullName: "Nancy"},
		{Email: "d@x.com"},
	}, got)
}

func TestLoad_ColumnGuessing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
	}{
		{"canonical", "email,full_name"},
		{"spaced and cased", " Email Address , Full Name "},
		{"reordered", "Contact Name,Company,E-mail / email"},
		{"byte order mark", "\ufeffemail,name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cols := strings.Split(tt.header, ",")
			row := make([]string, len(cols))
			emailCol, nameCol := detectColumns(cols)
			require.GreaterOrEqual(t, emailCol, 0)
			require.GreaterOrEqual(t, nameCol, 0)
			row[emailCol] = "sarah@example.com"
			row[nameCol] = "Sarah"

			got, err := Load(strings.NewReader(tt.header + "\n" + strings.Join(row, ",") + "\n"))
			require.NoError(t, err)
			require.Equal(t, []model.Recipient{{Email: "sarah@example.com", FullName: "Sarah"}}, got)
		})
	}
}

func TestLoad_SkipsRowsWithoutEmail(t *testing.T) {
	t.Parallel()

	input := "email,name\n,Nobody\n  ,Blank\nc@x.com\n"

	got, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []model.Recipient{{Email: "c@x.com"}}, got)
}

func TestLoad_MissingColumns(t *testing.T) {
	t.Parallel()

	_, err := Load(strings.NewReader("email,company\na@x.com,Acme\n"))
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = Load(strings.NewReader("name,company\nA,Acme\n"))
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestLoad_Empty(t *testing.T) {
	t.Parallel()

	_, err := Load(strings.NewReader(""))
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	got := Dedupe([]model.Recipient{
		{Email: " a@x.com ", FullName: " Ann "},
		{Email: "b@x.com", FullName: "Bob"},
		{Email: "a@x.com", FullName: "Ann Again"},
		{Email: "", FullName: "Ghost"},
	})
	require.Equal(t, []model.Recipient{
		{Email: "a@x.com", FullName: "Ann"},
		{Email: "b@x.com", FullName: "Bob"},
	}, got)
}
