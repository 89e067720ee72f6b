// Package pkg provides the core libraries for Stacksync dependency
// orchestration.
//
// # Overview
//
// Stacksync keeps the plugin dependencies of a host application in sync:
// it reads the ranges declared in package.json, resolves them against what
// is installed and what the registry offers, runs the package manager when
// an install is needed and tells the host which loaded modules to reload.
// The pkg directory is organized into these areas:
//
//  1. [registry], [fetch], [versions] - Registry documents, deduplicated
//     fetching and the version cache with throttled delta broadcasts
//  2. [manifest], [snapshot] - package.json editing, installed package
//     lookup and the memoized dependency snapshot
//  3. [install], [process] - Install decisions, the orchestrator and the
//     package-manager runner
//  4. [server] - HTTP and websocket API for a running host
//  5. [config], [cache], [errors], [observability] - Ambient infrastructure
//
// # Architecture
//
// The typical flow of an install request:
//
//	overrides (name → range)
//	         ↓
//	    [manifest] (apply and save package.json)
//	         ↓
//	    [install] Decide (skip when installed versions satisfy the ranges)
//	         ↓
//	    [process] Runner (npm, yarn, pnpm or bun)
//	         ↓
//	    [snapshot] rebuild → reload changed, loaded modules
//
// Registry lookups go through a single [fetch.Coordinator], so concurrent
// callers share one request per package until the state is invalidated.
// Every recorded version list also lands in the delta of [versions.Cache],
// which a [versions.Throttle] broadcasts to connected hosts at most once per
// window.
//
// # Quick Start
//
//	client := registry.NewClient(config.DiscoverEndpoint(root, ""))
//	orch := install.New(install.Options{
//	    Root:   root,
//	    Source: client,
//	    Runner: process.New(ctx, process.Options{Root: root}),
//	})
//	defer orch.Close()
//
//	res, err := orch.Install(ctx, map[string]string{"left-pad": "^1.3.0"}, false)
package pkg
