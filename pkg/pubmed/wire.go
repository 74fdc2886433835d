package pubmed

import (
	"strconv"
	"strings"
)

// articleSet mirrors the efetch PubmedArticleSet XML. Only the fields the
// pipeline reads are declared.
type articleSet struct {
	Articles []wireArticle `xml:"PubmedArticle"`
}

type wireArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Journal struct {
				Title        string `xml:"Title"`
				JournalIssue struct {
					PubDate struct {
						Year string `xml:"Year"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				Sections []struct {
					Label string `xml:"Label,attr"`
					Text  string `xml:",chardata"`
				} `xml:"AbstractText"`
			} `xml:"Abstract"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []struct {
			IDType string `xml:"IdType,attr"`
			ID     string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

func (wa wireArticle) toArticle() Article {
	cit := wa.MedlineCitation
	a := Article{
		PMID:    cit.PMID,
		Title:   strings.TrimSpace(cit.Article.ArticleTitle),
		Journal: strings.TrimSpace(cit.Article.Journal.Title),
	}

	if y, err := strconv.Atoi(cit.Article.Journal.JournalIssue.PubDate.Year); err == nil {
		a.Year = y
	}

	// Structured abstracts arrive as labeled sections; flatten them.
	var parts []string
	for _, s := range cit.Article.Abstract.Sections {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if s.Label != "" {
			text = s.Label + ": " + text
		}
		parts = append(parts, text)
	}
	a.Abstract = strings.Join(parts, "\n")

	for _, id := range wa.PubmedData.ArticleIDs {
		switch id.IDType {
		case "pmc":
			a.PMCID = strings.TrimSpace(id.ID)
		case "doi":
			a.DOI = strings.TrimSpace(id.ID)
		}
	}

	return a
}
