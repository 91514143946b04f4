// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package config loads votectl settings from a YAML file and VOTE_*
// environment variables, in that order.
package config
