package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"obra do João", "Obra Do Joao"},
		{"Obra da Maria", "Obra Da Maria"},
		{"OBRA DA RUA 10", "Obra Da Rua 10"},
		{"  obra\tdo   centro \n", "Obra Do Centro"},
		{"Construção São Ç", "Construcao Sao C"},
		{"obra-do-zé!", "Obradoze"},
		{"àáâãäå èéêë ìíîï òóôõö ùúûü", "Aaaaaa Eeee Iiii Ooooo Uuuu"},
		{"", ""},
		{"!!!", ""},
		{"geral", "Geral"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Obra do João",
		"obra   da   MARIA",
		"Rua 10a, bloco B",
		"ÇÃO ção",
		"",
		"  x  ",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_AccentAndCaseInsensitive(t *testing.T) {
	want := Normalize("Obra do João")
	require.Equal(t, "Obra Do Joao", want)
	require.Equal(t, want, Normalize("OBRA DO JOAO"))
	require.Equal(t, want, Normalize("obra   do joão"))
}

func TestProjectFor(t *testing.T) {
	require.Equal(t, "Project: Obra Do Joao", ProjectFor("obra do João").Title())
	require.Equal(t, "Project: General", ProjectFor("").Title())
	require.Equal(t, "Project: General", ProjectFor("?!").Title())
	require.Equal(t, ProjectFor(DefaultProjectName), ProjectFor("general"))
}

func TestProjectNameFromTitle(t *testing.T) {
	name, ok := ProjectNameFromTitle("Project: Obra Da Maria")
	require.True(t, ok)
	require.Equal(t, "Obra Da Maria", name)

	_, ok = ProjectNameFromTitle("Budget 2025")
	require.False(t, ok)
}
