// Package bookmarkd embeds the bookmark search collection in a Go program.
//
// The client talks to the same Valkey or Redis collection the bookmarkd
// service writes, so a program can search saved pages or index records of
// its own without going through the HTTP API.
//
//	client, _ := bookmarkd.New(ctx,
//	    bookmarkd.WithValkey("localhost:6379", ""),
//	    bookmarkd.WithEmbedder(myEmbedder),
//	)
//	defer client.Close()
//
//	hits, _ := client.Search(ctx, "go concurrency patterns", 5)
//	for _, h := range hits {
//	    fmt.Println(h.Score, h.Title, h.URL)
//	}
package bookmarkd
