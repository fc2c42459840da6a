package analysisevents

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
)

func TestPublish_DeliversJSON(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, nil)
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Cell != "8975a4e1d4bffff" || ev.OverallStatus != "Litigieux" {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		if len(ev.IntersectingLayers) != 2 || ev.AreaHectares != 1.5 {
			return fmt.Errorf("unexpected payload %+v", ev)
		}
		if ev.TS.IsZero() {
			return fmt.Errorf("timestamp must be filled in")
		}
		return nil
	})

	p := newPublisher(prod, "parcel-analyses", 4, nil)
	p.Publish(Event{
		Cell:               "8975a4e1d4bffff",
		OverallStatus:      "Litigieux",
		IntersectingLayers: []string{"litige", "aif"},
		AreaHectares:       1.5,
	})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	// no consumer goroutine: the queue fills and further events are dropped
	p := &Publisher{events: make(chan Event, 1)}
	p.Publish(Event{OverallStatus: "Libre", TS: time.Now()})
	p.Publish(Event{OverallStatus: "Libre"})
	p.Publish(Event{OverallStatus: "Libre"})
	if got := p.Dropped(); got != 2 {
		t.Fatalf("dropped=%d want 2", got)
	}
}
