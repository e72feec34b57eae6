package contract

// Interface versions offered by this release.
const (
	HayrideVersion = "0.0.65"
	WASIVersion    = "0.2.0"
)

// Built-in interfaces.
var (
	CoreVersion = MustParse("hayride:core/version@" + HayrideVersion)
	CoreTypes   = MustParse("hayride:core/types@" + HayrideVersion)
	CoreLog     = MustParse("hayride:core/log@" + HayrideVersion)

	SiloThreads = MustParse("hayride:silo/threads@" + HayrideVersion)
	SiloProcess = MustParse("hayride:silo/process@" + HayrideVersion)

	WacCompose = MustParse("hayride:wac/wac@" + HayrideVersion)

	DB = MustParse("hayride:db/db@" + HayrideVersion)

	AITensorStream    = MustParse("hayride:ai/tensor-stream@" + HayrideVersion)
	AIInferenceStream = MustParse("hayride:ai/inference-stream@" + HayrideVersion)
	AIGraphStream     = MustParse("hayride:ai/graph-stream@" + HayrideVersion)
	AIAgents          = MustParse("hayride:ai/agents@" + HayrideVersion)
	AIModel           = MustParse("hayride:ai/model@" + HayrideVersion)
	AIModelRepository = MustParse("hayride:ai/model-repository@" + HayrideVersion)
	AIRag             = MustParse("hayride:ai/rag@" + HayrideVersion)
	AITools           = MustParse("hayride:ai/tools@" + HayrideVersion)

	NNTensor    = MustParse("wasi:nn/tensor@0.2.0-rc-2024-10-28")
	NNGraph     = MustParse("wasi:nn/graph@0.2.0-rc-2024-10-28")
	NNInference = MustParse("wasi:nn/inference@0.2.0-rc-2024-10-28")

	CLIRun         = MustParse("wasi:cli/run@" + WASIVersion)
	CLIEnvironment = MustParse("wasi:cli/environment@" + WASIVersion)
	CLIStdout      = MustParse("wasi:cli/stdout@" + WASIVersion)
	CLIStderr      = MustParse("wasi:cli/stderr@" + WASIVersion)

	HTTPIncomingHandler = MustParse("wasi:http/incoming-handler@" + WASIVersion)
	HTTPConfig          = MustParse("hayride:http/config@" + HayrideVersion)
	WebsocketHandler    = MustParse("hayride:socket/websocket@" + HayrideVersion)
)

// DefaultWorlds returns the worlds shipped with the runtime.
func DefaultWorlds() []World {
	core := []InterfaceRef{CoreVersion, CoreLog}
	silo := []InterfaceRef{SiloThreads, SiloProcess}
	ai := []InterfaceRef{
		AITensorStream, AIInferenceStream, AIGraphStream,
		AIAgents, AIModel, AIModelRepository, AIRag,
		NNTensor, NNGraph, NNInference,
	}
	cli := []InterfaceRef{CLIEnvironment, CLIStdout, CLIStderr}

	all := func(groups ...[]InterfaceRef) []InterfaceRef {
		var out []InterfaceRef
		for _, g := range groups {
			out = append(out, g...)
		}
		return out
	}

	return []World{
		{Name: "server", Version: HayrideVersion, Imports: all(core, cli, []InterfaceRef{DB}), Exports: []InterfaceRef{HTTPIncomingHandler, HTTPConfig}},
		{Name: "cli", Version: HayrideVersion, Imports: all(core, silo, ai, cli, []InterfaceRef{WacCompose, DB}), Exports: []InterfaceRef{CLIRun}},
		{Name: "ws", Version: HayrideVersion, Imports: all(core, ai), Exports: []InterfaceRef{WebsocketHandler}},
		{Name: "ai", Version: HayrideVersion, Imports: all(core, ai)},
		{Name: "tool", Version: HayrideVersion, Imports: all(core, ai, cli), Exports: []InterfaceRef{AITools}},
		{Name: "core", Version: HayrideVersion, Imports: []InterfaceRef{CoreVersion}},
		{Name: "api", Version: HayrideVersion, Imports: []InterfaceRef{CoreTypes}},
		{Name: "silo", Version: HayrideVersion, Imports: silo},
		{Name: "wac", Version: HayrideVersion, Imports: []InterfaceRef{WacCompose}},
		{Name: "db", Version: HayrideVersion, Imports: []InterfaceRef{CoreVersion, DB}},
	}
}
