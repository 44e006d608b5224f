package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
)

type newRelicContextKey struct{}

// NewRelicContextKey is the context key holding the *newrelic.Application
var NewRelicContextKey = newRelicContextKey{}

// NewApplication creates a New Relic application reporting under appName. An
// empty license yields a disabled application that records nothing.
func NewApplication(appName, license string) (*newrelic.Application, error) {
	opts := []newrelic.ConfigOption{
		newrelic.ConfigAppName(appName),
		newrelic.ConfigAppLogForwardingEnabled(true),
	}
	if len(license) == 0 {
		opts = append(opts, newrelic.ConfigEnabled(false))
	} else {
		opts = append(opts, newrelic.ConfigLicense(license))
	}

	app, err := newrelic.NewApplication(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "error creating new relic application")
	}
	return app, nil
}

// NewContext returns a child context carrying app
func NewContext(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, NewRelicContextKey, app)
}

// FromContext returns the application stored by NewContext, if any
func FromContext(ctx context.Context) (*newrelic.Application, bool) {
	app, ok := ctx.Value(NewRelicContextKey).(*newrelic.Application)
	return app, ok && app != nil
}

// StartTransaction starts a New Relic transaction for a unit of work, such as a
// single CLI command. The returned function ends it. Without an application in
// ctx, ctx is returned unchanged.
func StartTransaction(ctx context.Context, name string) (context.Context, func()) {
	app, ok := FromContext(ctx)
	if !ok {
		return ctx, func() {}
	}

	txn := app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn.End
}
