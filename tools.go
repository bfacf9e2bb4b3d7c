// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

//go:build tools

// Package main keeps modules that are only imported behind build tags
// (integration suites) or by generated mocks in go.mod.
package main

import (
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
	_ "github.com/stretchr/testify/mock"
	_ "github.com/testcontainers/testcontainers-go/modules/postgres"
)
