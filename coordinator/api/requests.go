package api

import (
	"strings"

	"github.com/absmach/flcore/coordinator"
	pkgerrors "github.com/absmach/flcore/pkg/errors"
)

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if strings.TrimSpace(e.id) == "" {
		return pkgerrors.ErrMissingID
	}

	return nil
}

// restoreReq targets the latest checkpoint when latest is set.
type restoreReq struct {
	epoch  uint64
	latest bool
}

// modelReq names a file inside the coordinator's model directory.
type modelReq struct {
	Name string `json:"name"`
}

func (m *modelReq) validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return pkgerrors.ErrMalformedEntity
	}
	if !coordinator.ValidModelName(m.Name) {
		return coordinator.ErrInvalidModelName
	}

	return nil
}
