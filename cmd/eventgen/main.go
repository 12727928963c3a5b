// eventgen emits synthetic normalized events as NDJSON, suitable for
// abusehawk replay or for seeding a NATS subject. Alongside baseline
// traffic it injects one account creation burst and one login failure
// burst from a single hot address so the detectors have something to find.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/abusehawk/internal/event"
)

func main() {
	count := flag.Int("count", 1000, "number of baseline events")
	burst := flag.Int("burst", 8, "events per abuse burst")
	seed := flag.Int64("seed", 0, "random seed, 0 for time-based")
	start := flag.String("start", "2024-01-01T00:00:00Z", "event time of the first event")
	flag.Parse()

	if *seed != 0 {
		gofakeit.Seed(*seed)
	}
	ts, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid start time: %v\n", err)
		os.Exit(1)
	}

	out := json.NewEncoder(os.Stdout)
	hot := gofakeit.IPv4Address()

	for i := 0; i < *count; i++ {
		ts = ts.Add(time.Duration(gofakeit.Number(100, 2000)) * time.Millisecond)
		if err := out.Encode(baselineEvent(ts)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	for i := 0; i < *burst; i++ {
		ts = ts.Add(time.Duration(gofakeit.Number(500, 3000)) * time.Millisecond)
		e := event.Event{
			Timestamp:     ts,
			Kind:          event.KindAccountCreate,
			SubjectUser:   fmt.Sprintf("%s+%d@%s", gofakeit.Username(), i, gofakeit.DomainName()),
			SourceAddress: hot,
		}
		if err := out.Encode(&e); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	victim := gofakeit.Email()
	for i := 0; i < *burst; i++ {
		ts = ts.Add(time.Duration(gofakeit.Number(200, 1500)) * time.Millisecond)
		e := event.Event{
			Timestamp:     ts,
			Kind:          event.KindAuthFailure,
			SubjectUser:   victim,
			SourceAddress: hot,
		}
		if err := out.Encode(&e); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func baselineEvent(ts time.Time) *event.Event {
	e := event.Event{Timestamp: ts, SourceAddress: gofakeit.IPv4Address()}
	switch gofakeit.Number(0, 3) {
	case 0:
		e.Kind = event.KindAuthSuccess
		e.SubjectUser = gofakeit.Email()
		lat := gofakeit.Latitude()
		lon := gofakeit.Longitude()
		e.Latitude = &lat
		e.Longitude = &lon
	case 1:
		e.Kind = event.KindAuthFailure
		e.SubjectUser = gofakeit.Email()
	default:
		e.Kind = event.KindHTTPRequest
		e.RequestPath = "/" + gofakeit.Word()
		e.Status = gofakeit.HTTPStatusCodeSimple()
	}
	return &e
}
