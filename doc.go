// Package semdex is the embedded SDK for the concept-exposure measurement
// engine. It loads a paragraph corpus, builds per-region vector indices in
// memory, and exposes retrieval, threshold calibration, and exposure
// aggregation without running the HTTP server.
//
// A minimal client over parquet region files:
//
//	client, err := semdex.New(
//		semdex.WithRegionFile("sp500", "data/sp500.parquet"),
//		semdex.WithConceptsDir("concepts"),
//		semdex.WithEmbedder(myEmbedder),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Measure(ctx, []string{"climate"}, semdex.MeasureOptions{})
//
// Without an embedder the client still serves raw vector search, calibration
// and threshold management; Measure and Retrieve need one because concept
// query patterns are embedded at run time.
package semdex
