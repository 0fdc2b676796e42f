/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kas implements a Key Access Service for Trusted Data Format
// containers: it re-wraps data encryption keys for entitled requesters
// without ever releasing its own private keys.
//
// Packages for end developer usage
//
// pkg/service: The KAS operations themselves. TDF3 and nanoTDF rewrap,
// upsert proxying, public key serving, and health, independent of any
// transport.
//
// pkg/controller: REST bindings for the service operations, mounted by
// cmd/kas-rest.
//
// pkg/plugin: Capability interfaces hooked around rewrap and upsert, with
// the built-in attribute authority fetcher and entity allow/block lists.
//
// Basic workflow
//
//      1) Load the KAS key inventory into a keymaster.KeyMaster.
//      2) Build a service.Service from the inventory and a plugin.Chain.
//      3) Mount the REST handlers from pkg/controller on a router.
//      4) Serve.
//
// The kas-rest command wires all of the above from the environment.
package kas
