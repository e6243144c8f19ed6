package stats

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

type logEntry struct {
	Level       string `json:"level"`
	Msg         string `json:"msg"`
	ReqUUID     string `json:"req_uuid"`
	Value       *int   `json:"value,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	MaxTimeNano int64  `json:"max_time_nano,omitempty"`
}

// LogResult aggregates the JSON lines written by the sampling client.
type LogResult struct {
	Values       Histogram
	ReqTimesNano []int64
	// Failed counts "req failed" entries.
	Failed int
}

// ReadLog parses client log lines from r. Lines that are not JSON, such
// as output of a crashed container, are rejected.
func ReadLog(r io.Reader) (*LogResult, error) {
	var res LogResult
	scn := bufio.NewScanner(r)
	for line := 1; scn.Scan(); line++ {
		var e logEntry
		if err := json.Unmarshal(scn.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		switch {
		case e.Msg == "req failed":
			res.Failed++
		case e.Value != nil:
			if *e.Value < 0 || *e.Value >= Buckets {
				return nil, fmt.Errorf("line %d: value %d out of range", line, *e.Value)
			}
			res.Values.Add(byte(*e.Value))
			if e.MaxTimeNano != 0 {
				res.ReqTimesNano = append(res.ReqTimesNano, e.MaxTimeNano)
			}
		}
	}
	if err := scn.Err(); err != nil {
		return nil, err
	}
	return &res, nil
}
