package api

import (
	"context"
	"errors"

	"github.com/absmach/flcore/coordinator"
	pkgerrors "github.com/absmach/flcore/pkg/errors"
	"github.com/absmach/flcore/pkg/fl"
	"github.com/go-kit/kit/endpoint"
)

func stateEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return newStateRes(svc.State(ctx)), nil
	}
}

func listClientsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		ids := svc.Clients(ctx)

		return clientsRes{Total: len(ids), Clients: ids}, nil
	}
}

func deregisterClientEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return emptyRes{}, errors.Join(pkgerrors.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return emptyRes{}, errors.Join(pkgerrors.ErrValidation, err)
		}

		if err := svc.DeregisterClient(ctx, req.id); err != nil {
			return emptyRes{}, err
		}

		return emptyRes{}, nil
	}
}

func distributeEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		if err := svc.Distribute(ctx); err != nil {
			return emptyRes{}, err
		}

		return emptyRes{}, nil
	}
}

func restoreEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(restoreReq)
		if !ok {
			return checkpointRes{}, errors.Join(pkgerrors.ErrValidation, pkgerrors.ErrInvalidData)
		}

		var cp fl.Checkpoint
		var err error
		switch {
		case req.latest:
			cp, err = svc.RestoreLatest(ctx)
		default:
			cp, err = svc.RestoreCheckpoint(ctx, req.epoch)
		}
		if err != nil {
			return checkpointRes{}, err
		}

		return newCheckpointRes(cp), nil
	}
}

func resumeEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		state, err := svc.Resume(ctx)
		if err != nil {
			return stateRes{}, err
		}

		return newStateRes(state), nil
	}
}

func exportModelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(modelReq)
		if !ok {
			return emptyRes{}, errors.Join(pkgerrors.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return emptyRes{}, errors.Join(pkgerrors.ErrValidation, err)
		}

		if err := svc.ExportModel(ctx, req.Name); err != nil {
			return emptyRes{}, err
		}

		return emptyRes{}, nil
	}
}

func importModelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(modelReq)
		if !ok {
			return emptyRes{}, errors.Join(pkgerrors.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return emptyRes{}, errors.Join(pkgerrors.ErrValidation, err)
		}

		if err := svc.ImportModel(ctx, req.Name); err != nil {
			return emptyRes{}, err
		}

		return emptyRes{}, nil
	}
}
