// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cidadao/platform/orchestrator"
)

func main() {
	orchestrator.Run()
}
