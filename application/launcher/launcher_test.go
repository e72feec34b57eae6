package launcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hayride-dev/hayride-go/agent"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/hostfuncs"
	"github.com/hayride-dev/hayride-go/infrastructure/store"
	"github.com/hayride-dev/hayride-go/internal/testutil"
	"github.com/hayride-dev/hayride-go/pipeline"
	"github.com/hayride-dev/hayride-go/serve"
	"github.com/hayride-dev/hayride-go/silo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store    *store.FileStore
	silos    *silo.Manager
	launcher *Launcher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := store.NewFileStore(t.TempDir(), store.WithLogger(discard))
	l := New(st, append([]Option{WithLogger(discard)}, opts...)...)
	m := silo.NewManager(silo.WithLogger(discard), silo.WithThreadResolver(l))
	reg, err := hostfuncs.NewRegistry(
		hostfuncs.WithBundle(hostfuncs.CoreBundle("0.0.65", discard)),
		hostfuncs.WithBundle(hostfuncs.WacBundle(l)),
	)
	require.NoError(t, err)
	l.Attach(m, reg)

	t.Cleanup(func() {
		ctx := context.Background()
		_ = l.Shutdown(ctx)
		_ = m.Shutdown(ctx)
	})
	return &fixture{store: st, silos: m, launcher: l}
}

func (f *fixture) install(t *testing.T, ref string, mod testutil.WasmModule, manifest *entities.Manifest) {
	t.Helper()
	_, err := f.store.Install(ref, mod.Encode(), manifest)
	require.NoError(t, err)
}

// toolModule serves acme:tool/tool@1.0.0#echo.
func toolModule() testutil.WasmModule {
	return testutil.GuestModule(nil, testutil.EchoExport("acme:tool/tool@1.0.0#echo"))
}

// appModule forwards its call export to the echo import of tool@version.
func appModule(version string) testutil.WasmModule {
	return testutil.GuestModule(
		[]testutil.WasmImport{testutil.HostImport("acme:tool/tool@"+version, "echo")},
		testutil.ForwardExport("acme:app/app@1.0.0#call", 0),
	)
}

func TestLaunch_ProvidersFirstAndCrossSiloCalls(t *testing.T) {
	f := newFixture(t)
	f.install(t, "acme:app@1.0.0", appModule("1.0.0"), nil)
	f.install(t, "acme:tool@1.0.0", toolModule(), nil)
	ctx := context.Background()

	d, err := f.launcher.Launch(ctx, []string{"acme:app", "acme:tool"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme:tool", "acme:app"}, d.Order())

	out, err := d.Call(ctx, "acme:app", "call", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(out))

	appSilo, ok := d.Silo("acme:app")
	require.True(t, ok)
	info, err := f.silos.Info(appSilo)
	require.NoError(t, err)
	assert.Equal(t, entities.SiloRunning, info.State)
	assert.Equal(t, "acme:app@1.0.0", info.Owner)

	_, err = d.Call(ctx, "acme:missing", "call", nil)
	assert.ErrorIs(t, err, domainerrors.ErrComponentNotFound)

	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.Close(ctx))
	assert.Empty(t, f.silos.List())
}

func TestLaunch_VersionMismatchStartsNothing(t *testing.T) {
	f := newFixture(t)
	f.install(t, "acme:app@1.0.0", appModule("2.0.0"), nil)
	f.install(t, "acme:tool@1.0.0", toolModule(), nil)

	_, err := f.launcher.Launch(context.Background(), []string{"acme:app", "acme:tool"})
	var cfgErr *domainerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, domainerrors.KindVersionMismatch, cfgErr.Kind)
	assert.Contains(t, err.Error(), "acme:tool/tool@2.0.0")
	assert.Empty(t, f.silos.List())
}

func TestLaunch_CycleStartsNothing(t *testing.T) {
	f := newFixture(t)
	f.install(t, "acme:x@1.0.0", testutil.GuestModule(
		[]testutil.WasmImport{testutil.HostImport("acme:y/y@1.0.0", "f")},
		testutil.ForwardExport("acme:x/x@1.0.0#f", 0),
	), nil)
	f.install(t, "acme:y@1.0.0", testutil.GuestModule(
		[]testutil.WasmImport{testutil.HostImport("acme:x/x@1.0.0", "f")},
		testutil.ForwardExport("acme:y/y@1.0.0#f", 0),
	), nil)

	_, err := f.launcher.Launch(context.Background(), []string{"acme:x", "acme:y"})
	var cfgErr *domainerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, domainerrors.KindCycle, cfgErr.Kind)
	assert.Equal(t, []string{"acme:x", "acme:y"}, cfgErr.Nodes)
	assert.Empty(t, f.silos.List())
}

func TestLaunch_RejectedProviderRejectsDependants(t *testing.T) {
	f := newFixture(t)
	f.install(t, "acme:app@1.0.0", appModule("1.0.0"), nil)
	// The tool world requires hayride:ai/tools, which this binary lacks.
	f.install(t, "acme:tool@1.0.0", toolModule(), &entities.Manifest{
		Namespace: "acme", Name: "tool", Version: "1.0.0", World: "tool",
	})

	_, err := f.launcher.Launch(context.Background(), []string{"acme:app", "acme:tool"})
	var loadErr *domainerrors.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "load acme:tool@1.0.0 (world tool): missing export")
	assert.Contains(t, err.Error(), "dependency acme:tool rejected")
	assert.Empty(t, f.silos.List())
}

func TestLaunch_MissingProviderFunction(t *testing.T) {
	f := newFixture(t)
	f.install(t, "acme:app@1.0.0", testutil.GuestModule(
		[]testutil.WasmImport{testutil.HostImport("acme:tool/tool@1.0.0", "shout")},
		testutil.ForwardExport("acme:app/app@1.0.0#call", 0),
	), nil)
	f.install(t, "acme:tool@1.0.0", toolModule(), nil)

	_, err := f.launcher.Launch(context.Background(), []string{"acme:app", "acme:tool"})
	var loadErr *domainerrors.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "unknown function", loadErr.Reason)
	assert.Equal(t, "acme:tool/tool@1.0.0#shout", loadErr.Interface)
}

func TestLaunch_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.launcher.Launch(context.Background(), nil)
	var cfgErr *domainerrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = f.launcher.Launch(context.Background(), []string{"acme:nothing"})
	assert.ErrorIs(t, err, domainerrors.ErrComponentNotFound)

	unattached := New(f.store)
	_, err = unattached.Launch(context.Background(), []string{"acme:app"})
	assert.ErrorIs(t, err, ErrNotAttached)
}

func TestLauncher_ComposePlan(t *testing.T) {
	f := newFixture(t)
	// The app is planned from its manifest alone.
	f.install(t, "acme:app@1.0.0", appModule("1.0.0"), &entities.Manifest{
		Namespace: "acme",
		Name:      "app",
		Version:   "1.0.0",
		Imports:   []string{"acme:tool/tool@1.0.0", "hayride:core/version@0.0.60"},
		Exports:   []string{"acme:app/app@1.0.0"},
	})
	f.install(t, "acme:tool@1.2.0", testutil.GuestModule(nil, testutil.EchoExport("acme:tool/tool@1.2.0#echo")), nil)

	plan, err := f.launcher.Compose(context.Background(), []string{"acme:app", "acme:tool"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme:tool", "acme:app"}, plan.Order)
	assert.Equal(t, []hostfuncs.CompositionLink{
		{Importer: "acme:app", Provider: "acme:tool", Import: "acme:tool/tool@1.0.0", Export: "acme:tool/tool@1.2.0"},
		{Importer: "acme:app", Import: "hayride:core/version@0.0.60", Export: "hayride:core/version@0.0.65"},
	}, plan.Links)

	// Composing twice yields the same plan.
	again, err := f.launcher.Compose(context.Background(), []string{"acme:tool", "acme:app"})
	require.NoError(t, err)
	assert.Equal(t, plan, again)
	assert.Empty(t, f.silos.List())
}

func TestLauncher_Plug(t *testing.T) {
	f := newFixture(t)
	f.install(t, "acme:app@1.0.0", appModule("1.0.0"), nil)
	f.install(t, "acme:tool@1.0.0", toolModule(), nil)
	f.install(t, "acme:other@1.0.0", testutil.GuestModule(nil, testutil.EchoExport("acme:other/other@1.0.0#echo")), nil)

	plan, err := f.launcher.Plug(context.Background(), "acme:app", []string{"acme:tool"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme:tool", "acme:app"}, plan.Order)

	_, err = f.launcher.Plug(context.Background(), "acme:app", []string{"acme:tool", "acme:other"})
	var cfgErr *domainerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "acme:other", cfgErr.Component)
}

func TestLauncher_ThreadSilos(t *testing.T) {
	f := newFixture(t)
	f.install(t, "acme:tool@1.0.0", toolModule(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := f.silos.SpawnThread(ctx, "", entities.ThreadSpec{Component: "acme:tool", Function: "echo", Args: []string{"x"}})
	require.NoError(t, err)
	final, err := f.silos.Wait(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SiloTerminated, final.State)
	assert.Equal(t, `["x"]`, final.Stdout)

	_, err = f.silos.SpawnThread(ctx, "", entities.ThreadSpec{Component: "acme:tool", Function: "missing"})
	var spawnErr *domainerrors.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Contains(t, err.Error(), "unknown function")

	_, err = f.silos.SpawnThread(ctx, "", entities.ThreadSpec{Component: "acme:nothing"})
	assert.ErrorIs(t, err, domainerrors.ErrComponentNotFound)
}

type clockArgs struct {
	Zone string `json:"zone,omitempty"`
}

type failingInference struct{}

func (failingInference) Infer(context.Context, entities.InferenceRequest) (*pipeline.InferenceStream, error) {
	return nil, errors.New("no backend")
}

func TestLauncher_ToolsAndAgents(t *testing.T) {
	hostTools, err := agent.NewToolRegistry(agent.WithFunc("clock", "Current time", func(_ context.Context, _ clockArgs) (string, error) {
		return "noon", nil
	}))
	require.NoError(t, err)

	f := newFixture(t, WithHostTools(hostTools), WithInference(failingInference{}))
	// Exports the tools interface but cannot list anything, so only host
	// tools remain.
	f.install(t, "acme:tools@1.0.0", testutil.GuestModule(nil,
		testutil.EchoExport("hayride:ai/tools@0.0.65#call"),
		testutil.EchoExport("hayride:ai/tools@0.0.65#list"),
	), nil)

	d, err := f.launcher.Launch(context.Background(), []string{"acme:tools"})
	require.NoError(t, err)
	assert.Equal(t, []string{"clock"}, d.Tools().Names())
	require.NotNil(t, d.Agent())

	id, _ := d.Silo("acme:tools")
	assert.Same(t, d.Agent(), f.launcher.orchestratorFor(id))
	assert.NotSame(t, d.Agent(), f.launcher.orchestratorFor("elsewhere"))
	assert.NotNil(t, f.launcher.orchestratorFor("elsewhere"))

	require.NoError(t, d.Close(context.Background()))
	assert.NotSame(t, d.Agent(), f.launcher.orchestratorFor(id))
}

func TestLauncher_InvokeWithoutInference(t *testing.T) {
	f := newFixture(t)
	_, err := f.launcher.Invoke(context.Background(), "caller", hostfuncs.AgentRequest{})
	assert.ErrorIs(t, err, domainerrors.ErrUnsupported)
}

func TestDeployment_ServeServerComponent(t *testing.T) {
	f := newFixture(t)
	f.install(t, "acme:site@1.0.0", testutil.GuestModule(nil, testutil.EchoExport("wasi:http/incoming-handler@0.2.0#handle")), nil)
	f.install(t, "acme:tool@1.0.0", toolModule(), nil)
	ctx := context.Background()

	d, err := f.launcher.Launch(ctx, []string{"acme:site", "acme:tool"})
	require.NoError(t, err)
	defer d.Close(ctx)
	assert.True(t, d.Serves("acme:site"))
	assert.False(t, d.Serves("acme:tool"))
	assert.ErrorIs(t, d.Serve(ctx, "acme:tool"), domainerrors.ErrUnsupported)
	assert.ErrorIs(t, d.Serve(ctx, "acme:missing"), domainerrors.ErrComponentNotFound)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Serve(serveCtx, "acme:site", serve.WithAddress(addr)) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Post("http://"+addr+"/", "text/plain", strings.NewReader("hello"))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		body = string(raw)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "hello", body)

	siteSilo, ok := d.Silo("acme:site")
	require.True(t, ok)
	info, err := f.silos.Info(siteSilo)
	require.NoError(t, err)
	assert.Equal(t, entities.SiloRunning, info.State)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
