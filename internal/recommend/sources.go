package recommend

import (
	"sort"
	"strings"
	"time"

	"github.com/mrlokans/listenwise/internal/entities"
	"github.com/mrlokans/listenwise/internal/utils"
)

// source is one contributor or series selected from the library.
type source struct {
	Kind         entities.RecommendationKind
	Name         string
	ExternalID   string
	Count        int
	LastAcquired time.Time
}

// ownership indexes every entry the owner holds, hidden ones included.
type ownership struct {
	asins       map[string]bool
	titleAuthor map[string]bool
}

func newOwnership(entries []entities.LibraryEntry) ownership {
	o := ownership{asins: map[string]bool{}, titleAuthor: map[string]bool{}}
	for _, e := range entries {
		if asin := e.Book.ASINValue(); asin != "" {
			o.asins[asin] = true
		}
		if e.BookASIN != "" {
			o.asins[e.BookASIN] = true
		}
		o.titleAuthor[titleAuthorKey(e.Book.NormalizedTitle, e.Book.PrimaryAuthor)] = true
	}
	return o
}

func (o ownership) owns(asin, title, primaryAuthor string) bool {
	if asin != "" && o.asins[asin] {
		return true
	}
	return o.titleAuthor[titleAuthorKey(utils.NormalizeKey(title), utils.NormalizeKey(primaryAuthor))]
}

func titleAuthorKey(title, author string) string {
	return title + "\x00" + author
}

// selectSources ranks contributors and series in the visible library by book
// count, most recent acquisition breaking ties, and keeps the top n of each.
func selectSources(visible []entities.LibraryEntry, limits Limits) (authors, narrators, series []source) {
	authorGroups := map[uint]*source{}
	narratorGroups := map[uint]*source{}
	seriesGroups := map[uint]*source{}

	bump := func(groups map[uint]*source, id uint, s source, acquired time.Time) {
		g, ok := groups[id]
		if !ok {
			g = &s
			groups[id] = g
		}
		g.Count++
		if acquired.After(g.LastAcquired) {
			g.LastAcquired = acquired
		}
	}

	for _, e := range visible {
		for _, link := range e.Book.Contributors {
			s := source{Name: link.Contributor.Name}
			if link.Contributor.ExternalID != nil {
				s.ExternalID = *link.Contributor.ExternalID
			}
			switch link.Role {
			case entities.RoleAuthor:
				s.Kind = entities.RecommendationKindAuthor
				bump(authorGroups, link.ContributorID, s, e.AcquiredAt)
			case entities.RoleNarrator:
				s.Kind = entities.RecommendationKindNarrator
				bump(narratorGroups, link.ContributorID, s, e.AcquiredAt)
			}
		}
		for _, link := range e.Book.Series {
			s := source{Kind: entities.RecommendationKindSeries, Name: link.Series.Title}
			if link.Series.ExternalID != nil {
				s.ExternalID = *link.Series.ExternalID
			}
			bump(seriesGroups, link.SeriesID, s, e.AcquiredAt)
		}
	}

	return top(authorGroups, limits.Authors), top(narratorGroups, limits.Narrators), top(seriesGroups, limits.Series)
}

func top(groups map[uint]*source, n int) []source {
	if n <= 0 {
		return nil
	}

	all := make([]source, 0, len(groups))
	for _, g := range groups {
		all = append(all, *g)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		if !all[i].LastAcquired.Equal(all[j].LastAcquired) {
			return all[i].LastAcquired.After(all[j].LastAcquired)
		}
		return strings.ToLower(all[i].Name) < strings.ToLower(all[j].Name)
	})

	if len(all) > n {
		all = all[:n]
	}
	return all
}
