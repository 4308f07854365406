// Copyright 2025 InjectGuard
// SPDX-License-Identifier: BUSL-1.1

//go:build enterprise

package main

// Enterprise imports - these packages register themselves via init()
import (
	// ML-assisted detection engine (registers with the engine registry)
	_ "injectguard/ee/platform/agent/detect/mlengine"

	// Managed sink backends (Snowflake, BigQuery)
	_ "injectguard/ee/platform/sinks/warehouse"
)
