package hostfuncs

import (
	"context"
	"fmt"

	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
)

// SiloService is the part of the silo manager guests may drive.
type SiloService interface {
	SpawnThread(ctx context.Context, parent string, spec entities.ThreadSpec) (entities.SiloInfo, error)
	SpawnProcess(ctx context.Context, parent string, spec entities.ProcessSpec) (entities.SiloInfo, error)
	Info(id string) (entities.SiloInfo, error)
	Terminate(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) (entities.SiloInfo, error)
	Children(parent string) []entities.SiloInfo
}

// SiloRef names a silo in a guest request.
type SiloRef struct {
	ID string `json:"id"`
}

// SiloGroup lists the silos spawned by the caller.
type SiloGroup struct {
	Silos []entities.SiloInfo `json:"silos"`
}

// SiloBundle returns the hayride:silo threads and process functions.
// A guest can only observe or stop silos it spawned itself.
func SiloBundle(svc SiloService) HostFuncBundle {
	owned := func(ctx context.Context, op, id string) (entities.SiloInfo, error) {
		caller, _ := CallerFrom(ctx)
		info, err := svc.Info(id)
		if err != nil {
			return entities.SiloInfo{}, err
		}
		if info.Parent != caller {
			return entities.SiloInfo{}, &domainerrors.SiloError{SiloID: id, Op: op, Err: domainerrors.ErrSiloNotFound}
		}
		return info, nil
	}
	status := func(op string) HostFuncE[SiloRef, entities.SiloInfo] {
		return func(ctx context.Context, req SiloRef) (entities.SiloInfo, error) {
			return owned(ctx, op, req.ID)
		}
	}
	kill := func(ctx context.Context, req SiloRef) (Empty, error) {
		if _, err := owned(ctx, "kill", req.ID); err != nil {
			return Empty{}, err
		}
		return Empty{}, svc.Terminate(ctx, req.ID)
	}
	wait := func(ctx context.Context, req SiloRef) (entities.SiloInfo, error) {
		if _, err := owned(ctx, "wait", req.ID); err != nil {
			return entities.SiloInfo{}, err
		}
		return svc.Wait(ctx, req.ID)
	}

	return HandlerSet{
		qualify(contract.SiloThreads, "id"): NewJSONHandler(func(ctx context.Context, _ Empty) SiloRef {
			caller, _ := CallerFrom(ctx)
			return SiloRef{ID: caller}
		}),
		qualify(contract.SiloThreads, "spawn"): NewJSONHandlerE(func(ctx context.Context, spec entities.ThreadSpec) (entities.SiloInfo, error) {
			if spec.Component == "" || spec.Function == "" {
				return entities.SiloInfo{}, &domainerrors.SpawnError{
					Kind:   entities.SiloThread,
					Target: spec.Component,
					Err:    fmt.Errorf("component and function are required"),
				}
			}
			caller, _ := CallerFrom(ctx)
			return svc.SpawnThread(ctx, caller, spec)
		}),
		qualify(contract.SiloThreads, "status"): NewJSONHandlerE(status("status")),
		qualify(contract.SiloThreads, "kill"):   NewJSONHandlerE(kill),
		qualify(contract.SiloThreads, "wait"):   NewJSONHandlerE(wait),
		qualify(contract.SiloThreads, "group"): NewJSONHandler(func(ctx context.Context, _ Empty) SiloGroup {
			caller, _ := CallerFrom(ctx)
			group := SiloGroup{Silos: []entities.SiloInfo{}}
			for _, info := range svc.Children(caller) {
				if info.Kind == entities.SiloThread {
					group.Silos = append(group.Silos, info)
				}
			}
			return group
		}),

		qualify(contract.SiloProcess, "spawn"): NewJSONHandlerE(func(ctx context.Context, spec entities.ProcessSpec) (entities.SiloInfo, error) {
			if spec.Command == "" {
				return entities.SiloInfo{}, &domainerrors.SpawnError{
					Kind: entities.SiloProcess, Err: fmt.Errorf("command is required"),
				}
			}
			caller, _ := CallerFrom(ctx)
			return svc.SpawnProcess(ctx, caller, spec)
		}),
		qualify(contract.SiloProcess, "status"): NewJSONHandlerE(status("status")),
		qualify(contract.SiloProcess, "kill"):   NewJSONHandlerE(kill),
		qualify(contract.SiloProcess, "wait"):   NewJSONHandlerE(wait),
	}
}
