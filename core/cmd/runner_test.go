package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coretelegram "github.com/m3rciful/shopbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct {
	opts   coretelegram.RunOptions
	err    error
	closed bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, a.err }

func (a *fakeApp) Close() error {
	a.closed = true
	return nil
}

func baseOptions(app *fakeApp) Options {
	return Options{
		ConfigPath:     "config.yaml",
		LoadConfig:     func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
	}
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var started, stopped bool
	app := &fakeApp{opts: coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { started = true; return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { stopped = true; return nil },
	}}
	opts := baseOptions(app)
	opts.RunTelegram = func(ctx context.Context, ro coretelegram.RunOptions) error {
		require.NoError(t, ro.OnStart(ctx, coretelegram.Runtime{}))
		return ro.OnStop(ctx, coretelegram.Runtime{})
	}

	require.NoError(t, Run(opts))
	assert.True(t, started)
	assert.True(t, stopped)
}

func TestRunClosesAppWhenOptionsFail(t *testing.T) {
	app := &fakeApp{err: errors.New("no registry")}
	opts := baseOptions(app)
	opts.RunTelegram = func(context.Context, coretelegram.RunOptions) error {
		t.Fatal("run must not be reached")
		return nil
	}

	err := Run(opts)
	require.Error(t, err)
	assert.True(t, app.closed)
}

func TestRunValidatesOptions(t *testing.T) {
	opts := baseOptions(&fakeApp{})
	opts.ConfigPath = ""
	assert.Error(t, Run(opts))

	opts = baseOptions(&fakeApp{})
	opts.LoadConfig = func(string) (ConfigCarrier, error) { return nil, errors.New("missing file") }
	assert.ErrorContains(t, Run(opts), "missing file")

	opts = baseOptions(&fakeApp{})
	opts.LoadConfig = func(string) (ConfigCarrier, error) { return carrier{}, nil }
	assert.ErrorContains(t, Run(opts), "missing core configuration")
}
