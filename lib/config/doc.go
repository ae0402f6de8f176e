// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the chat controller's configuration.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the CHAT_CONTROLLER_CONFIG environment variable
// (via [Load]). There is no search path. Files ending in .json or
// .jsonc are JSON with comments and trailing commas allowed; anything
// else is YAML. Both decode through the same yaml field names.
//
// After loading, ${VAR} and ${VAR:-default} are expanded in the
// fields that name secrets or paths (completion.api_key,
// identity.key_file, status.socket_path), so an API key can stay in
// the environment rather than the file. No other environment variable
// overrides a config value.
//
// Command-line overrides are applied by the binary between loading
// and [Config.Validate].
package config
