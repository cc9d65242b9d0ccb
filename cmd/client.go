// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/penumbra/pkg/dimlink"
)

// openClient opens the co-processor link and wraps it in a command client
// using the configured device profile
func openClient() (*dimlink.Client, Connection, string, error) {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, nil, "", err
	}

	profile := dimlink.ProfileByName(cfg.Value("profile"))
	transport := dimlink.NewTransport(conn, dimlink.WithLogger(appLog.Logger))
	return dimlink.NewClient(transport, profile, appLog.Logger), conn, connInfo, nil
}
