// Package host loads and runs hayride components on wazero.
//
// A Loader compiles a binary once per content digest, reads its import and
// export sections, and checks them against a world and the host functions
// on offer. An Executor owns the wazero runtime, exposes registry-backed
// host interfaces as wazero host modules on first use, and instantiates
// components as Instances. Every call into an Instance uses the packed
// (i64) -> i64 pointer/length ABI with JSON payloads.
//
//	exec, err := host.NewExecutor(ctx, host.WithHostFunctions(registry))
//	if err != nil {
//	    return err
//	}
//	defer exec.Close(ctx)
//
//	c, err := exec.Loader().Load(ctx, "hello", binary, "cli")
//	if err != nil {
//	    return err
//	}
//	inst, err := exec.Instantiate(ctx, c, siloID)
//	if err != nil {
//	    return err
//	}
//	err = inst.Run(ctx)
package host
