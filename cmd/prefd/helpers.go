package main

import (
	"github.com/spf13/cobra"

	"github.com/prefd-io/prefd/internal/config"
	"github.com/prefd-io/prefd/internal/eventbus"
	"github.com/prefd-io/prefd/internal/profile"
	"github.com/prefd-io/prefd/internal/profile/store"
)

// openService opens the profile store honouring the --db override and wraps
// it in a service. The caller must invoke the returned cleanup.
func openService(cmd *cobra.Command, opts ...profile.ServiceOption) (*profile.Service, func(), error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath != "" {
		dbPath = config.ExpandPath(dbPath)
	}

	st, err := store.Open(store.Options{DBPath: dbPath})
	if err != nil {
		return nil, nil, err
	}

	svc := profile.NewService(st, opts...)
	cleanup := func() {
		svc.Close()
		st.Close()
	}
	return svc, cleanup, nil
}

// openServiceWithBus is openService plus an attached event bus, used by the
// daemon so watchers receive state snapshots.
func openServiceWithBus(cmd *cobra.Command) (*profile.Service, *eventbus.Bus, func(), error) {
	bus := eventbus.New()
	svc, cleanup, err := openService(cmd, profile.WithBus(bus))
	if err != nil {
		return nil, nil, nil, err
	}
	return svc, bus, cleanup, nil
}
