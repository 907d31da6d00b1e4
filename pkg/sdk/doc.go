// Package sdk provides a Go client for the semdex HTTP API: concept
// retrieval, exposure measurement, threshold calibration, and raw semantic
// search over a running semdex server.
//
//	client := sdk.New("http://localhost:8080",
//	    sdk.WithAPIKey("secret"),
//	)
//
//	matches, err := client.Retrieve(ctx, "climate", sdk.RetrieveOptions{K: 200})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := client.Measure(ctx, sdk.MeasureRequest{
//	    Concepts:       []string{"climate"},
//	    SplitBySegment: true,
//	})
//
// API errors carry the server's error code and unwrap to sentinel errors,
// so callers can branch with errors.Is:
//
//	if errors.Is(err, sdk.ErrMissingThreshold) {
//	    // calibrate first
//	}
package sdk
