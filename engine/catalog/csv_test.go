package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/WessleyAI/cinesearch/engine/domain"
)

const moviesCSV = `budget,genres,id,keywords,overview,release_date,title,vote_average
237000000,"[{""id"": 28, ""name"": ""Action""}, {""id"": 878, ""name"": ""Science Fiction""}]",19995,"[{""id"": 1463, ""name"": ""culture clash""}]","In the 22nd century, a paraplegic Marine is dispatched to the moon Pandora.",2009-12-10,Avatar,7.2
0,"[{""name"":""Sci-Fi""}]",42,[],A ship drifts,,Nova,
1,[],abc,[],,1999-01-01,No Id,not-a-number
`

func TestReadMovies(t *testing.T) {
	movies, err := ReadMovies(strings.NewReader(moviesCSV))
	if err != nil {
		t.Fatalf("ReadMovies: %v", err)
	}
	if len(movies) != 3 {
		t.Fatalf("expected 3 movies, got %d", len(movies))
	}

	avatar := movies[0]
	if avatar.ID != 19995 || !avatar.HasID || avatar.Title != "Avatar" {
		t.Errorf("avatar = %+v", avatar)
	}
	if avatar.VoteAverage == nil || *avatar.VoteAverage != 7.2 {
		t.Errorf("avatar rating = %v", avatar.VoteAverage)
	}
	if got := ParseNames(avatar.Genres); len(got) != 2 || got[1] != "Science Fiction" {
		t.Errorf("avatar genres = %v", got)
	}

	nova := movies[1]
	if nova.VoteAverage != nil {
		t.Errorf("empty rating should be nil, got %v", *nova.VoteAverage)
	}
	if nova.ReleaseDate != "" {
		t.Errorf("empty date should be empty, got %q", nova.ReleaseDate)
	}
	if nova.Cast != "" {
		t.Errorf("absent cast column should read empty, got %q", nova.Cast)
	}

	noID := movies[2]
	if noID.HasID {
		t.Errorf("non-numeric id should not parse: %+v", noID)
	}
	if noID.VoteAverage != nil {
		t.Error("non-numeric rating should be nil")
	}
}

func TestReadMoviesMissingTitle(t *testing.T) {
	_, err := ReadMovies(strings.NewReader("id,overview\n1,x\n"))
	if !errors.Is(err, domain.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestReadMoviesEmpty(t *testing.T) {
	if _, err := ReadMovies(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestReadMoviesBOM(t *testing.T) {
	movies, err := ReadMovies(strings.NewReader("\ufefftitle,id\nNova,7\n"))
	if err != nil {
		t.Fatalf("ReadMovies: %v", err)
	}
	if movies[0].Title != "Nova" || movies[0].ID != 7 {
		t.Fatalf("got %+v", movies[0])
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{" 42 ", 42, true},
		{"42.0", 42, true},
		{"42.5", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
		{"x", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseID(%q) = %d,%v want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseRating(t *testing.T) {
	if r := parseRating("6.5"); r == nil || *r != 6.5 {
		t.Fatalf("got %v", r)
	}
	for _, s := range []string{"", "  ", "nan", "NaN", "Inf", "n/a"} {
		if r := parseRating(s); r != nil {
			t.Errorf("parseRating(%q) = %v, want nil", s, *r)
		}
	}
}

const creditsCSV = `movie_id,title,cast,crew
19995,Avatar,"[{""name"": ""Sam Worthington"", ""character"": ""Jake Sully""}]",[]
777,Orphan,[],[]
bad,Broken,[],[]
`

func TestReadCredits(t *testing.T) {
	credits, err := ReadCredits(strings.NewReader(creditsCSV))
	if err != nil {
		t.Fatalf("ReadCredits: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("expected 2 credits rows, got %d", len(credits))
	}
	if !strings.Contains(credits[19995], "Jake Sully") {
		t.Errorf("avatar cast = %q", credits[19995])
	}
}

func TestReadCreditsRepeatedIDKeepsLastRow(t *testing.T) {
	const dup = `movie_id,title,cast,crew
5,First,"[{""name"": ""Early Actor""}]",[]
6,Other,[],[]
5,Second,"[{""name"": ""Late Actor""}]",[]
`
	credits, err := ReadCredits(strings.NewReader(dup))
	if err != nil {
		t.Fatalf("ReadCredits: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(credits))
	}
	if !strings.Contains(credits[5], "Late Actor") || strings.Contains(credits[5], "Early Actor") {
		t.Fatalf("credits[5] = %q, want last row", credits[5])
	}

	got := Join([]domain.RawMovie{{ID: 5, HasID: true, Title: "Five"}}, credits)
	if len(got) != 1 || got[0].Cast != credits[5] {
		t.Fatalf("joined = %+v", got)
	}
}

func TestReadCreditsMissingColumns(t *testing.T) {
	_, err := ReadCredits(strings.NewReader("movie_id,title\n1,x\n"))
	if !errors.Is(err, domain.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestJoin(t *testing.T) {
	movies := []domain.RawMovie{
		{ID: 3, HasID: true, Title: "c", Cast: "stale"},
		{ID: 1, HasID: true, Title: "a"},
		{Title: "no id"},
		{ID: 2, HasID: true, Title: "b"},
	}
	credits := map[int64]string{1: "cast-a", 3: "cast-c", 9: "cast-z"}
	got := Join(movies, credits)
	if len(got) != 2 {
		t.Fatalf("expected inner join of 2, got %d", len(got))
	}
	if got[0].Title != "c" || got[0].Cast != "cast-c" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Title != "a" || got[1].Cast != "cast-a" {
		t.Errorf("second = %+v", got[1])
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	src := Source{
		MoviesPath:  writeFile(t, dir, "movies.csv", moviesCSV),
		CreditsPath: writeFile(t, dir, "credits.csv", creditsCSV),
	}
	movies, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(movies) != 1 || movies[0].Title != "Avatar" {
		t.Fatalf("expected only Avatar after join, got %+v", movies)
	}
	if got := ParseCast(movies[0].Cast, 10); len(got) != 2 {
		t.Fatalf("cast = %v", got)
	}

	movies, err = Load(Source{MoviesPath: src.MoviesPath})
	if err != nil {
		t.Fatalf("Load without credits: %v", err)
	}
	if len(movies) != 3 {
		t.Fatalf("expected 3 movies, got %d", len(movies))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(Source{MoviesPath: filepath.Join(t.TempDir(), "nope.csv")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	src := Source{MoviesPath: writeFile(t, dir, "movies.csv", moviesCSV)}

	a, err := Digest(src, "external", "boosted")
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	b, _ := Digest(src, "external", "boosted")
	if a != b {
		t.Fatal("digest must be stable")
	}
	c, _ := Digest(src, "ordinal", "boosted")
	if a == c {
		t.Fatal("options must change the digest")
	}
	d, _ := Digest(src, "externalboosted")
	if a == d {
		t.Fatal("option boundaries must change the digest")
	}

	writeFile(t, dir, "movies.csv", moviesCSV+"2,[],5,[],,,Extra,\n")
	e, _ := Digest(src, "external", "boosted")
	if a == e {
		t.Fatal("file contents must change the digest")
	}
}
