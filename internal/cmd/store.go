package cmd

import (
	"fmt"

	"github.com/dataviz-jp/cartosync/internal/config"
	"github.com/dataviz-jp/cartosync/internal/observability"
	"github.com/dataviz-jp/cartosync/pkg/blobstore/supabase"
	"github.com/dataviz-jp/cartosync/pkg/projectstore"
	"github.com/dataviz-jp/cartosync/pkg/projectstore/direct"
	"github.com/dataviz-jp/cartosync/pkg/projectstore/gateway"
	"github.com/dataviz-jp/cartosync/pkg/session"
)

// buildStore assembles the configured backend strategy. The session comes
// from the access token in config; commands fail with ErrAuthRequired on
// their first operation when it is absent.
func buildStore(c *config.Config) (projectstore.Store, error) {
	sessions := session.NewStaticProvider(c.App.AccessToken)

	switch projectstore.BackendType(c.Backend) {
	case projectstore.BackendGateway:
		return gateway.New(gateway.Config{
			BaseURL:  c.Gateway.BaseURL,
			AppScope: c.App.Scope,
			Logger:   observability.CLILogger,
		}, sessions)

	case projectstore.BackendDirect:
		blobs, err := supabase.New(supabase.Config{
			BaseURL: c.Supabase.URL,
			APIKey:  c.Supabase.APIKey,
			Bucket:  c.Supabase.Bucket,
		})
		if err != nil {
			return nil, err
		}
		meta, err := direct.NewPostgRESTStore(direct.PostgRESTConfig{
			BaseURL: c.Supabase.URL,
			APIKey:  c.Supabase.APIKey,
			Table:   c.Supabase.Table,
		})
		if err != nil {
			return nil, err
		}
		return direct.New(direct.Config{
			AppScope: c.App.Scope,
			Logger:   observability.CLILogger,
		}, blobs, meta, sessions)

	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}
