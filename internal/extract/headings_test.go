package extract

import (
	"errors"
	"testing"

	"github.com/lotas/doctrack/internal/identity"
	"github.com/lotas/doctrack/internal/types"
)

const sphinxArticle = `<html><body>
<nav><h2>Site menu</h2></nav>
<article role="main">
  <section id="meshes">
    <h1>Meshes<a class="headerlink" href="#meshes" title="Link to this heading">¶</a></h1>
    <section id="structure">
      <h2>Structure<a class="headerlink" href="#structure">¶</a></h2>
      <h3 id="vertices">Vertices</h3>
      <h4>Edges</h4>
      <h4>Edges</h4>
      <h4>  </h4>
      <h5>Loops</h5>
    </section>
  </section>
  <div><h3>Orphan</h3></div>
  <script>var h1 = "<h1>no</h1>";</script>
</article>
</body></html>`

const articlePage = "https://docs.example.org/manual/en/latest/modeling/meshes/index.html"

func TestAllHeadings(t *testing.T) {
	doc := parseHTML(t, sphinxArticle)
	got, err := AllHeadings(doc, articlePage, HeadingOptions{ContentSelector: "article[role=main]"})
	if err != nil {
		t.Fatalf("AllHeadings: %v", err)
	}

	wantTitles := []string{"Meshes", "Structure", "Vertices", "Edges", "Edges", "Loops", "Orphan"}
	if len(got) != len(wantTitles) {
		t.Fatalf("got %d headings, want %d", len(got), len(wantTitles))
	}
	for i, w := range wantTitles {
		if got[i].Title != w {
			t.Errorf("heading %d title = %q, want %q", i, got[i].Title, w)
		}
	}
	if got[0].Level != 1 || got[5].Level != 5 {
		t.Errorf("levels = %d, %d", got[0].Level, got[5].Level)
	}

	// Headings with a permalink target share ids with sidebar links.
	want := identity.ForLink("#meshes", articlePage).ID
	if got[0].ID != want {
		t.Errorf("h1 id = %q, want %q", got[0].ID, want)
	}
	if got[2].ID != identity.ForLink("#vertices", articlePage).ID {
		t.Errorf("h3 own id not used: %q", got[2].ID)
	}

	// Same text, different ordinal.
	if got[3].ID == got[4].ID {
		t.Error("duplicate headings share an id")
	}
	key := identity.PageKey(articlePage)
	if got[4].ID != identity.ForHeading(key, "h4", "Edges", 1).ID {
		t.Errorf("second h4 id = %q", got[4].ID)
	}
	// "Vertices" consumed h3 ordinal 0.
	if got[6].ID != identity.ForHeading(key, "h3", "Orphan", 1).ID {
		t.Errorf("orphan id = %q", got[6].ID)
	}
}

func TestAllHeadingsWholeDocument(t *testing.T) {
	doc := parseHTML(t, sphinxArticle)
	got, err := AllHeadings(doc, articlePage, HeadingOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Title != "Site menu" {
		t.Errorf("first heading = %q, want nav heading included", got[0].Title)
	}
}

func TestAllHeadingsMissingContent(t *testing.T) {
	doc := parseHTML(t, `<html><body><h1>x</h1></body></html>`)
	got, err := AllHeadings(doc, articlePage, HeadingOptions{ContentSelector: "main"})
	if !errors.Is(err, ErrRegionNotFound) {
		t.Fatalf("err = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestSelectHeadings(t *testing.T) {
	all := []*types.NavNode{
		{ID: "a", Level: 1},
		{ID: "b", Level: 3},
		{ID: "c", Level: 4},
		{ID: "d", Level: 6},
	}

	auto := SelectHeadings(all, types.HeadingSelection{Mode: types.HeadingsAuto})
	if len(auto) != 2 || auto[0].ID != "a" || auto[1].ID != "b" {
		t.Errorf("auto = %v", auto)
	}

	manual := SelectHeadings(all, types.HeadingSelection{
		Mode:     types.HeadingsManual,
		Selected: map[string]bool{"c": true, "d": true},
	})
	if len(manual) != 2 || manual[0].ID != "c" || manual[1].ID != "d" {
		t.Errorf("manual = %v", manual)
	}

	none := SelectHeadings(all, types.HeadingSelection{Mode: types.HeadingsManual})
	if len(none) != 0 {
		t.Errorf("manual with nil selection = %v", none)
	}
}
