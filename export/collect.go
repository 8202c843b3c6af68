package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/nrfscan/scanner"
)

const (
	contentType       = "application/json"
	collectEndpoint   = "nrfscan/v1/collect"
	defaultSendAmount = 100
)

type collectResponse struct {
	Status      string `json:"status"`
	RecordCount int    `json:"recordCount"`
}

// CollectServer forwards records to an nrfscan ingest server in
// batches. A failed batch is kept and retried together with the next
// one; the partial tail batch is flushed when the capture ends.
type CollectServer struct {
	Server     string
	SendAmount int
}

func (s *CollectServer) Write(ctx context.Context, records <-chan scanner.Record) error {
	sendAmount := defaultSendAmount
	if s.SendAmount > 0 {
		sendAmount = s.SendAmount
	}

	var batch []scanner.Record
	for r := range records {
		batch = append(batch, r)
		if len(batch) < sendAmount {
			continue // we haven't collected enough records to send yet
		}

		if err := s.send(batch); err != nil {
			glog.Warningf("error sending records: %s\n", err)
			continue // keep the batch around for the next attempt
		}
		batch = nil
	}

	if len(batch) > 0 {
		if err := s.send(batch); err != nil {
			return fmt.Errorf("unable to flush %d remaining records: %w", len(batch), err)
		}
	}
	return nil
}

func (s *CollectServer) send(batch []scanner.Record) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("error marshalling records to JSON: %w", err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/%s", strings.TrimRight(s.Server, "/"), collectEndpoint), contentType, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error POSTing records: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading POST response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server responded with %s", resp.Status)
	}

	collectResponseBody := collectResponse{}
	json.Unmarshal(respBody, &collectResponseBody)
	glog.Infof("submitted %d records to server %s", collectResponseBody.RecordCount, s.Server)

	return nil
}
