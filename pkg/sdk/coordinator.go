package sdk

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const (
	stateEndpoint       = "/state"
	clientsEndpoint     = "/clients"
	distributeEndpoint  = "/distribute"
	checkpointsEndpoint = "/checkpoints"
	resumeEndpoint      = "/resume"
	modelEndpoint       = "/model"
)

type State struct {
	Epoch                    uint64   `json:"epoch"`
	BestLoss                 *float64 `json:"best_loss,omitempty"`
	EpochsWithoutImprovement uint64   `json:"epochs_without_improvement"`
	Patience                 uint64   `json:"patience"`
	Phase                    string   `json:"phase"`
	Status                   string   `json:"status"`
}

type ClientPage struct {
	Total   int      `json:"total"`
	Clients []string `json:"clients"`
}

type Checkpoint struct {
	ID        string    `json:"id"`
	Epoch     uint64    `json:"epoch"`
	Loss      *float64  `json:"loss,omitempty"`
	Params    []string  `json:"params"`
	CreatedAt time.Time `json:"created_at"`
}

func (sdk *flSDK) State() (State, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.coordinatorURL+stateEndpoint, nil, http.StatusOK)
	if err != nil {
		return State{}, err
	}

	var s State
	if err := json.Unmarshal(body, &s); err != nil {
		return State{}, err
	}

	return s, nil
}

func (sdk *flSDK) Clients() (ClientPage, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.coordinatorURL+clientsEndpoint, nil, http.StatusOK)
	if err != nil {
		return ClientPage{}, err
	}

	var page ClientPage
	if err := json.Unmarshal(body, &page); err != nil {
		return ClientPage{}, err
	}

	return page, nil
}

func (sdk *flSDK) DeregisterClient(id string) error {
	url := sdk.coordinatorURL + clientsEndpoint + "/" + id

	if _, err := sdk.processRequest(http.MethodDelete, url, nil, http.StatusNoContent); err != nil {
		return err
	}

	return nil
}

func (sdk *flSDK) Distribute() error {
	if _, err := sdk.processRequest(http.MethodPost, sdk.coordinatorURL+distributeEndpoint, nil, http.StatusNoContent); err != nil {
		return err
	}

	return nil
}

func (sdk *flSDK) RestoreCheckpoint(epoch uint64) (Checkpoint, error) {
	return sdk.restore(strconv.FormatUint(epoch, 10))
}

func (sdk *flSDK) RestoreLatest() (Checkpoint, error) {
	return sdk.restore("latest")
}

func (sdk *flSDK) restore(epoch string) (Checkpoint, error) {
	url := sdk.coordinatorURL + checkpointsEndpoint + "/" + epoch + "/restore"

	body, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusOK)
	if err != nil {
		return Checkpoint{}, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(body, &cp); err != nil {
		return Checkpoint{}, err
	}

	return cp, nil
}

func (sdk *flSDK) Resume() (State, error) {
	body, err := sdk.processRequest(http.MethodPost, sdk.coordinatorURL+resumeEndpoint, nil, http.StatusOK)
	if err != nil {
		return State{}, err
	}

	var s State
	if err := json.Unmarshal(body, &s); err != nil {
		return State{}, err
	}

	return s, nil
}

func (sdk *flSDK) ExportModel(name string) error {
	return sdk.model("/export", name)
}

func (sdk *flSDK) ImportModel(name string) error {
	return sdk.model("/import", name)
}

func (sdk *flSDK) model(action, name string) error {
	data, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}

	url := sdk.coordinatorURL + modelEndpoint + action
	if _, err := sdk.processRequest(http.MethodPost, url, data, http.StatusNoContent); err != nil {
		return err
	}

	return nil
}
