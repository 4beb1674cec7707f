// Package docstore reads device history from a JSON document store over
// its REST interface.
//
// Each device's readings live under {root}/{deviceId} as an object keyed
// by record ID. The client asks the store for the most recent N records
// ordered by their "timestamp" field:
//
//	GET {url}/{root}/{deviceId}.json?orderBy="timestamp"&limitToLast=N
//
// # Usage
//
//	client, err := docstore.New(cfg.DocStore)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	entries, err := client.Latest(ctx, "living_room", 100)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Transport failures, non-200 responses and unparseable bodies all wrap
// ErrRequestFailed. A "null" body means the device has no records and is
// returned as an empty result.
package docstore
