// Package sdk is an HTTP client for the coordinator API.
package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const CTJSON string = "application/json"

type SDK interface {
	// State returns the early-stopping state of the coordinator.
	//
	// example:
	//  state, _ := sdk.State()
	//  fmt.Println(state.Status)
	State() (State, error)

	// Clients lists the registered client IDs.
	//
	// example:
	//  page, _ := sdk.Clients()
	//  fmt.Println(page.Clients)
	Clients() (ClientPage, error)

	// DeregisterClient removes a client from future rounds.
	//
	// example:
	//  _ = sdk.DeregisterClient("brave_turing")
	DeregisterClient(id string) error

	// Distribute copies the global weights into every registered client.
	Distribute() error

	// RestoreCheckpoint applies the checkpoint stored for epoch to the global model.
	//
	// example:
	//  cp, _ := sdk.RestoreCheckpoint(12)
	//  fmt.Println(cp.ID)
	RestoreCheckpoint(epoch uint64) (Checkpoint, error)

	// RestoreLatest applies the most recently written checkpoint.
	RestoreLatest() (Checkpoint, error)

	// Resume restores the latest checkpoint and continues early stopping from it.
	Resume() (State, error)

	// ExportModel saves the global model under name in the coordinator's
	// model directory. Absolute names and names containing ".." are rejected.
	//
	// example:
	//  _ = sdk.ExportModel("model.cbor")
	ExportModel(name string) error

	// ImportModel loads the global model from name in the model directory.
	ImportModel(name string) error
}

// Error carries the status code and message of a failed request.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected response code: %d", e.StatusCode)
	}

	return fmt.Sprintf("unexpected response code: %d: %s", e.StatusCode, e.Message)
}

type flSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &flSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *flSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)

		return []byte{}, &Error{StatusCode: resp.StatusCode, Message: e.Error}
	}

	return body, nil
}
