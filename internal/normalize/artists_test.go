package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanArtistList(t *testing.T) {
	t.Parallel()

	in := []string{
		"Louise Bourgeois (1911–2010)",
		"  ",
		"",
		"Turner Prize",
		"National Portrait Gallery",
		"louise bourgeois",
		"Jean-Michel Basquiat",
		"Jean Michel Basquiat (American)",
		"Yayoi Kusama,",
	}
	got := CleanArtistList(in)
	require.Equal(t, []string{"Louise Bourgeois", "Jean-Michel Basquiat", "Yayoi Kusama"}, got)
}

func TestCleanArtistNameStripsNestedTrailingNotes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Hilma af Klint", CleanArtistName("Hilma af Klint (Swedish) (1862-1944)"))
	require.Equal(t, "", CleanArtistName("The Collection"))
}
