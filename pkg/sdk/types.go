package bookmarkd

// Record is one entry of the search collection.
type Record struct {
	ID    string
	Text  string
	URL   string
	Title string
}

// Hit is a single search result. Score is a similarity in [0, 1].
type Hit struct {
	ID    string
	Score float64
	Text  string
	URL   string
	Title string
}
