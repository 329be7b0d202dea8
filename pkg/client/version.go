// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

// API version constants. The version is sent in the Cfpilot-Version header;
// the monitor rejects versions it does not know.
const (
	// LatestVersion is the current API version.
	LatestVersion = Version20261001

	// Version20261001 is the initial monitor API.
	Version20261001 = "2026-10-01"
)

// VersionHeader is the HTTP header used to specify the API version.
const VersionHeader = "Cfpilot-Version"
